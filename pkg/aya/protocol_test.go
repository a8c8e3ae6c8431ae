package aya

import "testing"

func TestValidateCommandEnvelope(t *testing.T) {
	cmd, err := NewCommand("player.playItem", PlayItemBody{ItemID: "track:1"})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if err := ValidateCommandEnvelope(cmd); err == nil {
		t.Fatalf("expected error for incomplete envelope")
	}

	cmd.ID = "id"
	cmd.TS = 1
	cmd.From = "tester"
	if err := ValidateCommandEnvelope(cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCommandEnvelopeMissingFields(t *testing.T) {
	cmd := CommandEnvelope{}
	if err := ValidateCommandEnvelope(cmd); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTopics(t *testing.T) {
	if got := TopicCommands(BaseTopic, "aya:player:music"); got != "aya/v1/node/aya:player:music/cmd" {
		t.Fatalf("unexpected command topic: %s", got)
	}
	if got := TopicReply(BaseTopic, "ctl-1"); got != "aya/v1/reply/ctl-1" {
		t.Fatalf("unexpected reply topic: %s", got)
	}
}
