package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Member lifecycle topics.
const (
	TopicMemberRegistered       = "member.registered"
	TopicMemberLoggedIn         = "member.logged_in"
	TopicMemberLoggedOut        = "member.logged_out"
	TopicMemberUpdated          = "member.updated"
	TopicPasswordResetRequested = "member.password_reset_requested"
	TopicPasswordReset          = "member.password_reset"
)

// MemberTopics lists every member lifecycle topic.
var MemberTopics = []string{
	TopicMemberRegistered,
	TopicMemberLoggedIn,
	TopicMemberLoggedOut,
	TopicMemberUpdated,
	TopicPasswordResetRequested,
	TopicPasswordReset,
}

// MemberEvent is the payload of every member lifecycle message.
type MemberEvent struct {
	MemberID   string    `json:"member_id"`
	Username   string    `json:"username,omitempty"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PublishMemberEvent encodes ev and publishes it on topic.
func PublishMemberEvent(ctx context.Context, pub Publisher, topic string, ev MemberEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}
	return pub.Publish(ctx, Message{Topic: topic, MemberID: ev.MemberID, Payload: payload})
}

// DecodeMemberEvent decodes the payload of a member lifecycle message.
func DecodeMemberEvent(msg Message) (MemberEvent, error) {
	var ev MemberEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode %s event: %w", msg.Topic, err)
	}
	return ev, nil
}

// SubscribeAuditLog writes every member lifecycle event to logger.
func SubscribeAuditLog(ctx context.Context, sub Subscriber, logger *slog.Logger) error {
	for _, topic := range MemberTopics {
		err := sub.Subscribe(ctx, topic, func(ctx context.Context, msg Message) error {
			ev, err := DecodeMemberEvent(msg)
			if err != nil {
				return err
			}
			logger.InfoContext(ctx, "Member event", "event", msg.Topic, "member_id", ev.MemberID, "username", ev.Username)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	return nil
}
