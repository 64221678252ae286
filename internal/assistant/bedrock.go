/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/friendsincode/confplanner/internal/telemetry"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// Bedrock error codes worth retrying.
var retryableCodes = map[string]bool{
	"ThrottlingException":         true,
	"ServiceUnavailableException": true,
	"ModelNotReadyException":      true,
	"ModelTimeoutException":       true,
	"InternalServerException":     true,
}

// invoker is the subset of *bedrockruntime.Client the model uses.
type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockConfig configures a BedrockModel.
type BedrockConfig struct {
	Region    string
	ModelID   string
	MaxTokens int

	// MaxRetries bounds retries of throttled calls.
	MaxRetries     uint64
	InitialBackoff time.Duration
	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration
}

func (c *BedrockConfig) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// BedrockModel calls Anthropic models through the AWS Bedrock runtime.
type BedrockModel struct {
	client  invoker
	cfg     BedrockConfig
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewBedrockModel loads AWS configuration and creates the runtime client.
func NewBedrockModel(ctx context.Context, cfg BedrockConfig, logger zerolog.Logger) (*BedrockModel, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newBedrockModel(bedrockruntime.NewFromConfig(awsCfg), cfg, logger), nil
}

func newBedrockModel(client invoker, cfg BedrockConfig, logger zerolog.Logger) *BedrockModel {
	cfg.applyDefaults()
	logger = logger.With().Str("component", "bedrock").Str("model", cfg.ModelID).Logger()

	settings := gobreaker.Settings{
		Name:        "bedrock:" + cfg.ModelID,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors such as validation failures do not count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &BedrockModel{
		client:  client,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

type bedrockRequest struct {
	AnthropicVersion string     `json:"anthropic_version"`
	MaxTokens        int        `json:"max_tokens"`
	System           string     `json:"system,omitempty"`
	Messages         []Message  `json:"messages"`
	Tools            []ToolSpec `json:"tools,omitempty"`
}

// Complete sends req to Bedrock. Throttling is retried with exponential
// backoff; repeated failures open the circuit breaker.
func (m *BedrockModel) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.cfg.MaxTokens
	}
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           req.System,
		Messages:         req.Messages,
		Tools:            req.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	out, err := m.breaker.Execute(func() (interface{}, error) {
		return m.invokeWithRetry(ctx, body)
	})
	telemetry.AssistantModelLatency.WithLabelValues(m.cfg.ModelID).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return nil, fmt.Errorf("invoke %s: %w", m.cfg.ModelID, err)
	}

	var resp Response
	if err := json.Unmarshal(out.([]byte), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	m.logger.Debug().
		Str("stop_reason", resp.StopReason).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Msg("model call complete")
	return &resp, nil
}

func (m *BedrockModel) invokeWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(m.cfg.InitialBackoff)), m.cfg.MaxRetries),
		ctx,
	)

	return backoff.RetryNotifyWithData(func() ([]byte, error) {
		out, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(m.cfg.ModelID),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			if isRetryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return out.Body, nil
	}, policy, func(err error, wait time.Duration) {
		m.logger.Warn().Err(err).Dur("retry_in", wait).Msg("bedrock call throttled, retrying")
	})
}

// apiError matches the error codes carried by AWS service errors.
type apiError interface {
	ErrorCode() string
}

func isRetryable(err error) bool {
	var ae apiError
	if errors.As(err, &ae) {
		return retryableCodes[ae.ErrorCode()]
	}
	return false
}

func isClientError(err error) bool {
	var ae apiError
	if errors.As(err, &ae) {
		return !retryableCodes[ae.ErrorCode()]
	}
	return false
}
