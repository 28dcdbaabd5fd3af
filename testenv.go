package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"sunnyside/audio"
	"sunnyside/beep"
	"sunnyside/config"
	"sunnyside/log"
	"sunnyside/monitor"
	"sunnyside/typeahead"
	"sunnyside/weather"
)

const testWaitTimeout = 10 * time.Second

var testKeys = map[string]typeahead.Key{
	"DOWN":   typeahead.KeyDown,
	"UP":     typeahead.KeyUp,
	"ENTER":  typeahead.KeyEnter,
	"ESCAPE": typeahead.KeyEscape,
}

// runTestMode drives the widget from stdin commands with a fake audio
// output playing in real time:
//
//	TYPE <text>        set the city field
//	KEY <DOWN|UP|ENTER|ESCAPE>
//	SUBMIT             look up the current city
//	WAIT_SUGGESTIONS   wait for the newest suggestion query to settle
//	WAIT_VOICED        wait until the weatherman is speaking
//	WAIT_NARRATION     wait for the current narration to end
//	STOP               stop narration
//	SLEEP <ms>
//	VIEW               print the view as JSON
//	QUIT
func runTestMode(cfg *config.Config, client *weather.Client) int {
	beep.Disable()
	audio.SetShared(audio.NewFakeContext(true))

	a := newApp(context.Background(), cfg, client, monitor.Options{}, typeahead.Config{})
	defer a.close()

	log.SessionStart(version, cfg.Narrator.URL, client.HasKey())

	return driveTest(a, os.Stdin, os.Stdout)
}

func driveTest(a *app, in io.Reader, out io.Writer) int {
	ctx := context.Background()
	enc := json.NewEncoder(out)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
		case "TYPE":
			a.widget.Input(arg)
		case "KEY":
			k, ok := testKeys[arg]
			if !ok {
				fmt.Fprintf(out, "ERR unknown key %q\n", arg)
				continue
			}
			if !a.widget.Key(k) && k == typeahead.KeyEnter {
				a.widget.Submit(ctx)
			}
		case "SUBMIT":
			a.widget.Submit(ctx)
		case "WAIT_SUGGESTIONS":
			if !waitFor(func() bool {
				switch a.engine.Status(a.engine.Seq()) {
				case typeahead.Applied, typeahead.Failed:
					return true
				}
				return false
			}) {
				fmt.Fprintln(out, "ERR timeout waiting for suggestions")
			}
		case "WAIT_VOICED":
			if !waitFor(func() bool { return a.widget.View().Voiced }) {
				fmt.Fprintln(out, "ERR timeout waiting for voice")
			}
		case "WAIT_NARRATION":
			if s := a.monitor.Active(); s != nil {
				select {
				case <-s.Done():
				case <-time.After(testWaitTimeout):
					fmt.Fprintln(out, "ERR timeout waiting for narration")
				}
			}
		case "STOP":
			a.widget.StopNarration()
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "VIEW":
			fmt.Fprint(out, "VIEW ")
			enc.Encode(a.widget.View())
		case "QUIT":
			return 0
		default:
			fmt.Fprintf(out, "ERR unknown command %q\n", cmd)
		}
	}
	return 0
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(testWaitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
