package push

import (
	"github.com/socdo/notifyd/internal/models"
)

const (
	// defaultChannelID must match the channel registered by the mobile app.
	defaultChannelID   = "socdo_channel"
	defaultClickAction = "FLUTTER_NOTIFICATION_CLICK"
	defaultSound       = "default"
)

// Message is a single push payload addressed by device token. Both Android
// and APNS sections are always attached; the gateway applies whichever
// matches the token's platform.
type Message struct {
	Title    string
	Body     string
	Data     map[string]string
	Priority string
	ImageURL string
}

type fcmEnvelope struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *androidConfig    `json:"android,omitempty"`
	APNS         *apnsConfig       `json:"apns,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

type androidConfig struct {
	Priority     string              `json:"priority"`
	Notification androidNotification `json:"notification"`
}

type androidNotification struct {
	ChannelID   string `json:"channel_id"`
	Sound       string `json:"sound"`
	ClickAction string `json:"click_action"`
	Image       string `json:"image,omitempty"`
}

type apnsConfig struct {
	Headers    map[string]string `json:"headers"`
	Payload    apnsPayload       `json:"payload"`
	FCMOptions *apnsFCMOptions   `json:"fcm_options,omitempty"`
}

type apnsPayload struct {
	APS apsDictionary `json:"aps"`
}

type apsDictionary struct {
	Sound          string `json:"sound"`
	Badge          int    `json:"badge"`
	MutableContent int    `json:"mutable-content"`
}

type apnsFCMOptions struct {
	Image string `json:"image,omitempty"`
}

// buildEnvelope assembles the full FCM v1 request body for one device token.
func buildEnvelope(token string, msg Message, channelID string) fcmEnvelope {
	if channelID == "" {
		channelID = defaultChannelID
	}

	androidPriority := "normal"
	apnsPriority := "5"
	if msg.Priority == models.PriorityHigh {
		androidPriority = "high"
		apnsPriority = "10"
	}

	envelope := fcmEnvelope{
		Message: fcmMessage{
			Token: token,
			Notification: &fcmNotification{
				Title: msg.Title,
				Body:  msg.Body,
				Image: msg.ImageURL,
			},
			Data: msg.Data,
			Android: &androidConfig{
				Priority: androidPriority,
				Notification: androidNotification{
					ChannelID:   channelID,
					Sound:       defaultSound,
					ClickAction: defaultClickAction,
					Image:       msg.ImageURL,
				},
			},
			APNS: &apnsConfig{
				Headers: map[string]string{"apns-priority": apnsPriority},
				Payload: apnsPayload{
					APS: apsDictionary{
						Sound:          defaultSound,
						Badge:          1,
						MutableContent: 1,
					},
				},
			},
		},
	}
	if msg.ImageURL != "" {
		envelope.Message.APNS.FCMOptions = &apnsFCMOptions{Image: msg.ImageURL}
	}
	return envelope
}
