package telephony

import "net/url"

// ParseEvent normalizes vendor webhook parameters into a canonical Event.
// Form fields win over query-string fallbacks; missing fields stay empty,
// never an error. Both supported vendors use Twilio-compatible field names.
func ParseEvent(form, query url.Values, headers map[string]string) Event {
	get := func(key string) string {
		if v := form.Get(key); v != "" {
			return v
		}
		return query.Get(key)
	}

	event := Event{
		ProviderCallID: get("CallSid"),
		EventType:      get("CallStatus"),
		From:           get("From"),
		To:             get("To"),
		Digits:         get("Digits"),
		Speech:         get("SpeechResult"),
		RawHeaders:     headers,
	}
	if event.ProviderCallID == "" {
		event.ProviderCallID = "mock"
	}
	if event.EventType == "" {
		event.EventType = "answered"
	}
	return event
}
