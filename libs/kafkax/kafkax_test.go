package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "fieldops.shoot.completed.v1", Key: []byte("evt-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "fieldops.shoot.completed.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	msg.Headers = MetaHeaders(EventMeta{EventID: "evt-2", EventType: "custom"})
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-2" || meta.EventType != "custom" {
		t.Fatalf("unexpected meta from headers %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestHeaderCarrierSetOverwrites(t *testing.T) {
	c := &headerCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	if len(c.headers) != 1 || c.Get("traceparent") != "b" {
		t.Fatalf("unexpected headers %+v", c.headers)
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck("")(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}
}
