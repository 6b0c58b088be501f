package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/repository"
)

const unreadKeyFormat = "notify:unread:%s"

// NotificationService tracks per-user unread message counts and device
// push tokens. Counts live in a Redis hash keyed by user, one field per
// ticket, so the fallback poller can fetch them in a single call.
type NotificationService struct {
	redis  *redis.Client
	users  repository.UserRepository
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(client *redis.Client, users repository.UserRepository, logger *zap.Logger) *NotificationService {
	return &NotificationService{redis: client, users: users, logger: logger}
}

// IncrementUnread bumps the unread counter for one recipient and ticket.
func (n *NotificationService) IncrementUnread(ctx context.Context, userID, ticketID string) {
	if n.redis == nil {
		return
	}
	key := fmt.Sprintf(unreadKeyFormat, userID)
	if err := n.redis.HIncrBy(ctx, key, ticketID, 1).Err(); err != nil {
		n.logger.Warn("unread increment failed",
			zap.String("user_id", userID),
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}

// ClearUnread resets the counter once the user has read the conversation.
func (n *NotificationService) ClearUnread(ctx context.Context, userID, ticketID string) {
	if n.redis == nil {
		return
	}
	key := fmt.Sprintf(unreadKeyFormat, userID)
	if err := n.redis.HDel(ctx, key, ticketID).Err(); err != nil {
		n.logger.Warn("unread clear failed",
			zap.String("user_id", userID),
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}

// UnreadCounts returns the per-ticket unread counts for a user.
func (n *NotificationService) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	counts := make(map[string]int)
	if n.redis == nil {
		return counts, nil
	}
	key := fmt.Sprintf(unreadKeyFormat, userID)
	fields, err := n.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	for ticketID, raw := range fields {
		count, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		counts[ticketID] = count
	}
	return counts, nil
}

// RegisterPushToken stores a device token for later push delivery.
func (n *NotificationService) RegisterPushToken(ctx context.Context, userID, token, platform string) error {
	if err := n.users.SavePushToken(ctx, userID, token, platform); err != nil {
		return err
	}
	n.logger.Info("push token registered",
		zap.String("user_id", userID),
		zap.String("platform", platform))
	return nil
}
