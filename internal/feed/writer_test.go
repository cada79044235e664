package feed

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"xml2pb/internal/match"
)

func encodeSnapshot(t *testing.T, ts int64) []byte {
	t.Helper()
	b := NewBuilder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	msg := b.Build(map[string]match.TripDelay{
		"T100": {StopSequence: 1, DelaySeconds: 120},
	}, nil, time.Unix(ts, 0))
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pb")
	if err := WriteFile(path, encodeSnapshot(t, 1583752680)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got gtfs.FeedMessage
	if err := proto.Unmarshal(data, &got); err != nil {
		t.Fatalf("written file is not a valid feed: %v", err)
	}
	if got.GetHeader().GetTimestamp() != 1583752680 {
		t.Errorf("timestamp = %d", got.GetHeader().GetTimestamp())
	}
	if len(got.GetEntity()) != 1 || got.GetEntity()[0].GetId() != "T100" {
		t.Errorf("entities = %v", got.GetEntity())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0644 {
		t.Errorf("file mode = %o, want 644", perm)
	}
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pb")

	if err := WriteFile(path, encodeSnapshot(t, 100)); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, encodeSnapshot(t, 200)); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	var got gtfs.FeedMessage
	if err := proto.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.GetHeader().GetTimestamp() != 200 {
		t.Errorf("timestamp = %d, want the replacement's 200", got.GetHeader().GetTimestamp())
	}
}

func TestWriteFile_FailureLeavesPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pb")

	if err := WriteFile(path, encodeSnapshot(t, 100)); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	// Writing into a missing directory must fail without touching the original.
	bad := filepath.Join(dir, "missing", "out.pb")
	if err := WriteFile(bad, encodeSnapshot(t, 200)); err == nil {
		t.Fatal("WriteFile into a missing directory should fail")
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("failed write must leave the previous snapshot unchanged")
	}
}

func TestWriteFile_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pb")

	if err := WriteFile(path, encodeSnapshot(t, 100)); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.pb" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory contains %v, want only out.pb", names)
	}
}
