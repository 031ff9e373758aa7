package localhost

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestAdapter(t *testing.T) *LocalAdapter {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "host.log"), nil)
}

func TestExecuteSynthesizesHandshakeConfirmations(t *testing.T) {
	a := newTestAdapter(t)
	var lines []string
	a.SetLogSink(func(line string) { lines = append(lines, line) })

	a.Execute("save-off")
	a.Execute("save-all flush")
	a.Execute("save-on")

	want := []string{
		"Automatic saving is now disabled",
		"Saved the game",
		"Automatic saving is now enabled",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestExecuteAnswersDataGetForARegisteredPlayer(t *testing.T) {
	a := newTestAdapter(t)
	var lines []string
	a.SetLogSink(func(line string) { lines = append(lines, line) })
	a.SetPlayerState("Steve", PlayerState{Coord: [3]float64{1, 64, -2}, Dimension: "minecraft:the_nether"})

	a.Execute("data get entity Steve Pos")
	a.Execute("data get entity Steve Dimension")

	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %v", lines)
	}
	if lines[0] != `Steve has the following entity data: [1d, 64d, -2d]` {
		t.Fatalf("Pos response = %q", lines[0])
	}
	if lines[1] != `Steve has the following entity data: "minecraft:the_nether"` {
		t.Fatalf("Dimension response = %q", lines[1])
	}
}

func TestExecuteIgnoresDataGetForAnUnregisteredPlayer(t *testing.T) {
	a := newTestAdapter(t)
	var lines []string
	a.SetLogSink(func(line string) { lines = append(lines, line) })

	a.Execute("data get entity Ghost Pos")

	if len(lines) != 0 {
		t.Fatalf("expected no response for an unregistered player, got %v", lines)
	}
}

func TestSubscribeReceivesBroadcastsAndUnsubscribeStopsDelivery(t *testing.T) {
	a := newTestAdapter(t)
	ch := a.Subscribe()

	a.Broadcast("restoring in 5...")
	select {
	case line := <-ch:
		if line != "[broadcast] restoring in 5..." {
			t.Fatalf("line = %q", line)
		}
	default:
		t.Fatal("expected a buffered broadcast line")
	}

	a.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("expected the channel to be closed after Unsubscribe")
	}
}

func TestStopServerThenStartServerAppendsBothLogLines(t *testing.T) {
	a := newTestAdapter(t)
	if err := a.StopServer(); err != nil {
		t.Fatal(err)
	}
	if err := a.StartServer(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(a.logPath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(b)
	if !strings.Contains(content, "server stopped") || !strings.Contains(content, "server started") {
		t.Fatalf("log content = %q, missing expected lines", content)
	}
}

func TestTranslateFallsBackToKeyForUnknownMessages(t *testing.T) {
	a := newTestAdapter(t)
	got := a.Translate("prompt_msg.custom.create_sub_slot_success", 3)
	if got != "Sub-slot 3 added." {
		t.Fatalf("Translate = %q", got)
	}
	if got := a.Translate("no such %s key", "arg"); got != "no such arg key" {
		t.Fatalf("fallback Translate = %q", got)
	}
}
