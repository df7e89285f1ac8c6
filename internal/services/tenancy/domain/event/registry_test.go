package event

import (
	"reflect"
	"strings"
	"testing"
)

func TestDefinitionsMatchPayloadKinds(t *testing.T) {
	for _, def := range Definitions() {
		payload, err := Decode(def.Kind, nil)
		if err != nil {
			t.Fatalf("decode zero %s: %v", def.Kind, err)
		}
		if payload.Kind() != def.Kind {
			t.Fatalf("definition %s decodes to payload of kind %s", def.Kind, payload.Kind())
		}
		if !strings.HasPrefix(string(def.Kind), string(def.Aggregate)+".") {
			t.Fatalf("kind %s does not belong to aggregate %s", def.Kind, def.Aggregate)
		}
	}
}

func TestKindsOfPartitionsDefinitions(t *testing.T) {
	total := 0
	for _, agg := range []AggregateType{AggregateTenant, AggregateAgent, AggregateUser} {
		total += len(KindsOf(agg))
	}
	if total != len(Definitions()) {
		t.Fatalf("aggregate kinds = %d, definitions = %d", total, len(Definitions()))
	}
}

func TestEncodeDecodeRotation(t *testing.T) {
	in := AgentAPIKeyRotated{
		RevokedKeyID: "k1",
		Key:          APIKey{KeyID: "k2", Prefix: "tc_live_ab", SecretHash: "h2"},
	}
	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(KindAgentAPIKeyRotated, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("decoded = %#v, want %#v", out, in)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	if _, err := Decode("tenant.vanished", []byte("{}")); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := Decode(KindTenantSuspended, []byte("{not json")); err == nil {
		t.Fatal("expected malformed payload to fail")
	}
}

func TestEncodeRejectsNilPayload(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Fatal("expected nil payload to fail")
	}
}
