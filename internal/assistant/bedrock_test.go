package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"
)

type codedError struct{ code string }

func (e *codedError) Error() string     { return e.code }
func (e *codedError) ErrorCode() string { return e.code }

type fakeInvoker struct {
	errs   []error
	body   []byte
	calls  int
	inputs []*bedrockruntime.InvokeModelInput
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls++
	f.inputs = append(f.inputs, in)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func testBedrock(inv invoker) *BedrockModel {
	return newBedrockModel(inv, BedrockConfig{
		ModelID:        "anthropic.test",
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
	}, zerolog.Nop())
}

const okBody = `{"content":[{"type":"text","text":"search"}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":1}}`

func TestBedrockModel_EncodesAnthropicBody(t *testing.T) {
	inv := &fakeInvoker{body: []byte(okBody)}
	m := testBedrock(inv)

	resp, err := m.Complete(context.Background(), Request{
		System:   "route",
		Messages: []Message{TextMessage(RoleUser, "hello")},
		Tools:    []ToolSpec{{Name: "getTracks", Description: "tracks", InputSchema: emptySchema}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text() != "search" || resp.StopReason != StopEndTurn || resp.Usage.InputTokens != 12 {
		t.Fatalf("unexpected response %+v", resp)
	}

	in := inv.inputs[0]
	if *in.ModelId != "anthropic.test" || *in.ContentType != "application/json" {
		t.Fatalf("unexpected input %+v", in)
	}
	var body map[string]any
	if err := json.Unmarshal(in.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["anthropic_version"] != "bedrock-2023-05-31" {
		t.Fatalf("anthropic_version = %v", body["anthropic_version"])
	}
	if body["max_tokens"] != float64(1024) {
		t.Fatalf("max_tokens = %v", body["max_tokens"])
	}
	if body["system"] != "route" {
		t.Fatalf("system = %v", body["system"])
	}
	if tools, ok := body["tools"].([]any); !ok || len(tools) != 1 {
		t.Fatalf("tools = %v", body["tools"])
	}
}

func TestBedrockModel_RetriesThrottling(t *testing.T) {
	inv := &fakeInvoker{
		errs: []error{&codedError{"ThrottlingException"}, &codedError{"ServiceUnavailableException"}},
		body: []byte(okBody),
	}
	m := testBedrock(inv)

	if _, err := m.Complete(context.Background(), Request{Messages: []Message{TextMessage(RoleUser, "x")}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inv.calls != 3 {
		t.Fatalf("calls = %d, want 3", inv.calls)
	}
}

func TestBedrockModel_DoesNotRetryValidation(t *testing.T) {
	inv := &fakeInvoker{errs: []error{&codedError{"ValidationException"}}, body: []byte(okBody)}
	m := testBedrock(inv)

	_, err := m.Complete(context.Background(), Request{Messages: []Message{TextMessage(RoleUser, "x")}})
	var ce *codedError
	if !errors.As(err, &ce) || ce.code != "ValidationException" {
		t.Fatalf("expected validation error, got %v", err)
	}
	if inv.calls != 1 {
		t.Fatalf("calls = %d, want 1", inv.calls)
	}
}

func TestBedrockModel_BreakerOpensAfterFailures(t *testing.T) {
	errs := make([]error, 0, 64)
	for i := 0; i < 64; i++ {
		errs = append(errs, errors.New("connection reset"))
	}
	inv := &fakeInvoker{errs: errs}
	m := testBedrock(inv)
	req := Request{Messages: []Message{TextMessage(RoleUser, "x")}}

	for i := 0; i < 5; i++ {
		if _, err := m.Complete(context.Background(), req); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	calls := inv.calls

	_, err := m.Complete(context.Background(), req)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if inv.calls != calls {
		t.Fatalf("open breaker should not invoke the model")
	}
}

func TestBedrockModel_ClientErrorsDoNotTripBreaker(t *testing.T) {
	errs := make([]error, 0, 8)
	for i := 0; i < 8; i++ {
		errs = append(errs, &codedError{"ValidationException"})
	}
	inv := &fakeInvoker{errs: errs, body: []byte(okBody)}
	m := testBedrock(inv)
	req := Request{Messages: []Message{TextMessage(RoleUser, "x")}}

	for i := 0; i < 8; i++ {
		_, _ = m.Complete(context.Background(), req)
	}
	if _, err := m.Complete(context.Background(), req); err != nil {
		t.Fatalf("expected success after client errors, got %v", err)
	}
}
