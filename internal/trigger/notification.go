package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// EventObjectFinalize is the Cloud Storage event type for a newly written object.
const EventObjectFinalize = "OBJECT_FINALIZE"

// ErrMalformed is returned when a notification body cannot be understood.
var ErrMalformed = errors.New("malformed storage notification")

// Notification announces a landed object.
type Notification struct {
	Bucket    string
	Key       string
	EventType string
}

// Location returns the batch location named by the notification.
func (n Notification) Location() domain.BatchLocation {
	return domain.BatchLocation{Bucket: n.Bucket, Key: n.Key}
}

// objectResource is the Cloud Storage JSON object representation sent by
// direct object notifications.
type objectResource struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// pushEnvelope is a Pub/Sub push request carrying a Cloud Storage
// notification in its attributes.
type pushEnvelope struct {
	Message *struct {
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Decode parses either a Pub/Sub push envelope or a bare object resource.
func Decode(body []byte) (Notification, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.Message != nil {
		attrs := env.Message.Attributes
		n := Notification{
			Bucket:    strings.TrimSpace(attrs["bucketId"]),
			Key:       strings.TrimSpace(attrs["objectId"]),
			EventType: attrs["eventType"],
		}
		if n.Bucket == "" || n.Key == "" {
			return Notification{}, fmt.Errorf("%w: push message %q lacks bucketId/objectId", ErrMalformed, env.Message.MessageID)
		}
		return n, nil
	}

	var obj objectResource
	if err := json.Unmarshal(body, &obj); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n := Notification{Bucket: strings.TrimSpace(obj.Bucket), Key: strings.TrimSpace(obj.Name)}
	if n.Bucket == "" || n.Key == "" {
		return Notification{}, fmt.Errorf("%w: bucket and name are required", ErrMalformed)
	}

	return n, nil
}

// Filter decides which notifications start a batch.
type Filter struct {
	// Bucket, when set, is the only bucket accepted.
	Bucket string
	// Suffix is matched against the object key, case-insensitively.
	Suffix string
}

// Accept reports whether n names a batch file this deployment processes.
func (f Filter) Accept(n Notification) bool {
	if n.EventType != "" && n.EventType != EventObjectFinalize {
		return false
	}
	if f.Bucket != "" && n.Bucket != f.Bucket {
		return false
	}
	if strings.HasSuffix(n.Key, "/") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(n.Key), strings.ToLower(f.Suffix))
}
