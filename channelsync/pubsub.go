package channelsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

func syncTopicName() string {
	name := strings.TrimSpace(os.Getenv("CHANNEL_SYNC_TOPIC"))
	if name == "" {
		name = "channel-sync"
	}
	return name
}

func PublishSyncRun(ctx context.Context, runId uint, companyId string, connectionId uint) error {
	topicName := syncTopicName()

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("CHANNEL_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		RunId:        runId,
		CompanyId:    companyId,
		ConnectionId: connectionId,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts Pub/Sub push deliveries. Always answers 204:
// a non-2xx would make Pub/Sub redeliver, and processing failures are
// already retried through run state, not transport retries.
func PubSubPushHandler(worker *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_CHANNEL_SYNC_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 || payload.CompanyId == "" {
			c.Status(204)
			return
		}

		if err := worker.ProcessSyncRun(c.Request.Context(), payload); err != nil {
			config.LogError(config.GetLogger(), "channelsync", "PubSubPushHandler",
				"sync run processing failed", payload, err)
		}
		c.Status(204)
	}
}

// RunPullConsumer consumes sync runs from a pull subscription. The
// standalone worker uses this when push delivery is not configured
// (local dev, plain VMs). Blocks until ctx is cancelled.
func RunPullConsumer(ctx context.Context, worker *Worker) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic, err := config.CreateTopicIfNotExists(client, syncTopicName())
	if err != nil {
		return err
	}

	subName := strings.TrimSpace(os.Getenv("CHANNEL_SYNC_SUBSCRIPTION"))
	if subName == "" {
		subName = "channel-sync-worker"
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, subName, topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		// Always ack. Failed runs are retried through run state and the
		// sweeper, not through transport redelivery.
		defer msg.Ack()

		var payload SyncPubSubPayload
		if err := utils.UnmarshalFromJSON(msg.Data, &payload); err != nil {
			return
		}
		if payload.RunId == 0 || payload.CompanyId == "" {
			return
		}
		if err := worker.ProcessSyncRun(ctx, payload); err != nil {
			config.LogError(config.GetLogger(), "channelsync", "RunPullConsumer",
				"sync run processing failed", payload, err)
		}
	})
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
