package aws

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// mockSQS is an in-memory queue: sent messages become receivable, and received messages stay
// in flight until deleted. requeue makes in-flight messages visible again.
type mockSQS struct {
	mu       sync.Mutex
	nextID   int
	visible  []sqstypes.Message
	inFlight map[string]sqstypes.Message
	receives map[string]int
	sent     []*sqs.SendMessageInput
	deleted  []string
	sendErr  error
	onEmpty  func()
}

func newMockSQS() *mockSQS {
	return &mockSQS{
		inFlight: map[string]sqstypes.Message{},
		receives: map[string]int{},
	}
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, in)
	m.nextID++
	id := strconv.Itoa(m.nextID)
	attrs := map[string]sqstypes.MessageAttributeValue{}
	for k, v := range in.MessageAttributes {
		attrs[k] = v
	}
	m.visible = append(m.visible, sqstypes.Message{
		MessageId:         awsString(id),
		Body:              in.MessageBody,
		MessageAttributes: attrs,
	})
	return &sqs.SendMessageOutput{MessageId: awsString(id)}, nil
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	if len(m.visible) == 0 {
		onEmpty := m.onEmpty
		m.mu.Unlock()
		if onEmpty != nil {
			onEmpty()
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer m.mu.Unlock()

	n := int(in.MaxNumberOfMessages)
	if n <= 0 || n > len(m.visible) {
		n = len(m.visible)
	}
	batch := m.visible[:n]
	m.visible = m.visible[n:]

	out := make([]sqstypes.Message, 0, n)
	for _, msg := range batch {
		id := *msg.MessageId
		m.receives[id]++
		msg.ReceiptHandle = awsString("rh-" + id)
		msg.Attributes = map[string]string{
			string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount): strconv.Itoa(m.receives[id]),
		}
		m.inFlight["rh-"+id] = msg
		out = append(out, msg)
	}
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (m *mockSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inFlight[*in.ReceiptHandle]; !ok {
		return nil, errors.New("receipt handle is invalid")
	}
	delete(m.inFlight, *in.ReceiptHandle)
	m.deleted = append(m.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

// requeue simulates visibility timeout expiry.
func (m *mockSQS) requeue() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for rh, msg := range m.inFlight {
		delete(m.inFlight, rh)
		m.visible = append(m.visible, msg)
	}
}
