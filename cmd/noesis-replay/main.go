// Command noesis-replay inspects a world journal offline. It rebuilds
// state at any sequence number, lists the raw log, or re-renders exactly
// what one viewer perceived over a range of events.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/noesisproject/noesis/internal/bridge"
	"github.com/noesisproject/noesis/internal/engine"
	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/storage"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		case "view":
			viewCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: noesis-replay <state|log|view> [flags]")
	os.Exit(2)
}

func readEvents(dir string) []*event.Event {
	events, err := event.ReadJournal(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reading journal:", err)
		os.Exit(1)
	}
	return events
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	dir := fs.String("journal", "./journal", "journal directory")
	upTo := fs.Uint64("seq", 0, "rebuild up to this sequence (0 means latest)")
	_ = fs.Parse(args)

	replayer := engine.NewReplayer(readEvents(*dir))
	snap, err := replayer.Rebuild(*upTo)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rebuilding:", err)
		os.Exit(1)
	}

	fmt.Printf("world at seq %d\n", snap.Seq)
	for _, e := range snap.All() {
		loc, _ := snap.LocationOf(e.ID)
		line := fmt.Sprintf("%-20s %-24q layers=%s", e.ID, e.Name, e.Layers)
		if loc != "" {
			line += fmt.Sprintf(" at=%s", loc)
		}
		if e.Viewer() {
			line += fmt.Sprintf(" loc=%s see=%s", e.Perception.Loc, e.Perception.See())
		}
		fmt.Println(line)
	}
}

func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dir := fs.String("journal", "./journal", "journal directory")
	from := fs.Uint64("from", 1, "first sequence to print")
	to := fs.Uint64("to", 0, "last sequence to print (0 means end)")
	_ = fs.Parse(args)

	for _, ev := range readEvents(*dir) {
		if ev.Seq < *from || (*to != 0 && ev.Seq > *to) {
			continue
		}
		payload := ""
		if len(ev.Payload) > 0 {
			compact, err := json.Marshal(ev.Payload)
			if err == nil {
				payload = " " + string(compact)
			}
		}
		fmt.Printf("%6d %-8s %-22s actor=%-12s loc=%-12s%s\n",
			ev.Seq, ev.Category, ev.Type, ev.Actor, ev.Location, payload)
	}
}

func viewCmd(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	dir := fs.String("journal", "./journal", "journal directory")
	viewer := fs.String("viewer", "", "viewer id (required)")
	from := fs.Uint64("from", 1, "first sequence to perceive")
	to := fs.Uint64("to", 0, "last sequence to perceive (0 means end)")
	raw := fs.Bool("raw", false, "print packets as json instead of prose")
	_ = fs.Parse(args)

	if *viewer == "" {
		fmt.Fprintln(os.Stderr, "view: -viewer is required")
		os.Exit(2)
	}

	replayer := engine.NewReplayer(readEvents(*dir))
	infos, err := replayer.Reperceive(storage.Identifier(*viewer), *from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reperceiving:", err)
		os.Exit(1)
	}

	if *raw {
		for _, info := range infos {
			data, err := json.Marshal(info)
			if err != nil {
				fmt.Fprintln(os.Stderr, "encoding packet:", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
		}
		return
	}

	renderer, err := bridge.NewRenderer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "building renderer:", err)
		os.Exit(1)
	}
	for _, info := range infos {
		fmt.Printf("%6d  %s\n", info.EventSeq, renderer.Render(info))
	}
}
