package event

import "reflect"

// Notification is one event instance: a routing tag plus an optional payload.
type Notification struct {
	Tag     string
	Payload any
}

var notificationType = reflect.TypeOf(Notification{})
