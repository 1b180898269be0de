// Package transport delivers setpoint commands to building gateways: over
// MQTT for on-premises gateways, over SQS for cloud-connected ones. Every
// commander implements results.Commander and can be wrapped in a
// BreakerCommander.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"aircx/internal/results"
	"aircx/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSCommander serializes a CommandMessage and sends it to the gateway queue.
// On a FIFO queue commands are grouped per equipment unit so a unit's
// commands are applied in issue order, and deduplicated by command ID.
type SQSCommander struct {
	client   SQSSender
	queueURL string
	fifo     bool
	logger   *slog.Logger
}

// Compile-time assertion that SQSCommander implements results.Commander.
var _ results.Commander = (*SQSCommander)(nil)

// NewSQSCommander creates a new SQSCommander for the given queue.
func NewSQSCommander(client SQSSender, queueURL string, logger *slog.Logger) *SQSCommander {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSCommander{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		logger:   logger,
	}
}

// Send implements results.Commander.
func (c *SQSCommander) Send(ctx context.Context, msg types.CommandMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: failed to marshal CommandMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"equipment_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.EquipmentID),
			},
			"channel": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Channel)),
			},
		},
	}
	if c.fifo {
		input.MessageGroupId = aws.String(msg.EquipmentID)
		input.MessageDeduplicationId = aws.String(msg.CommandID)
	}

	if _, err := c.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("transport: failed to send command to %s: %w", c.queueURL, err)
	}

	c.logger.DebugContext(ctx, "command enqueued",
		"queue_url", c.queueURL,
		"command_id", msg.CommandID,
		"equipment_id", msg.EquipmentID,
		"channel", string(msg.Channel),
	)
	return nil
}
