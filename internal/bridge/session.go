package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pixil98/go-log"

	"github.com/noesisproject/noesis/internal/dispatch"
	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/messaging"
	"github.com/noesisproject/noesis/internal/perception"
	"github.com/noesisproject/noesis/internal/storage"
)

// Submitter is the engine half the bridge needs.
type Submitter interface {
	Submit(ctx context.Context, actor storage.Identifier, typ event.Type, payload json.RawMessage) (uint64, error)
}

// Transport carries Information packets in and acknowledgements out.
// Satisfied by messaging.NatsServer.
type Transport interface {
	Subscribe(subject string, handler func(data []byte)) (func(), error)
	Publish(subject string, data []byte) error
}

// Session binds one connection to one viewer: render incoming packets,
// acknowledge them after the write lands, translate input lines into
// attempts.
type Session struct {
	conn      io.ReadWriter
	viewer    storage.Identifier
	engine    Submitter
	transport Transport
	renderer  *Renderer
}

func NewSession(conn io.ReadWriter, viewer storage.Identifier, engine Submitter, transport Transport, renderer *Renderer) *Session {
	return &Session{
		conn:      conn,
		viewer:    viewer,
		engine:    engine,
		transport: transport,
		renderer:  renderer,
	}
}

func (s *Session) Run(ctx context.Context) error {
	msgs := make(chan *perception.Information, 32)
	unsub, err := s.transport.Subscribe(messaging.InfoSubject(s.viewer), func(data []byte) {
		var info perception.Information
		if err := json.Unmarshal(data, &info); err != nil {
			log.GetLogger(ctx).Warnf("discarding malformed packet for %s: %v", s.viewer, err)
			return
		}
		select {
		case msgs <- &info:
		default:
			// Full channel means an unacked packet; dispatch redelivers.
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", s.viewer, err)
	}
	defer unsub()

	inputChan := make(chan string)
	inputErrChan := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.conn)
		for scanner.Scan() {
			inputChan <- scanner.Text()
		}
		inputErrChan <- scanner.Err()
		close(inputChan)
	}()

	if err := s.prompt(); err != nil {
		return err
	}

	seen := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case info := <-msgs:
			// Render once per packet id; redeliveries still get acked.
			if !seen[info.PacketID] {
				seen[info.PacketID] = true
				if err := s.writeLine("\n" + s.renderer.Render(info)); err != nil {
					return err
				}
				if err := s.prompt(); err != nil {
					return err
				}
			}
			s.ack(ctx, info)

		case line, ok := <-inputChan:
			if !ok {
				select {
				case err := <-inputErrChan:
					return err
				default:
					return nil
				}
			}

			cmd := parseLine(line)
			switch {
			case cmd.quit:
				return s.writeLine("The layers close behind you.")
			case cmd.typ != "":
				if err := s.submit(ctx, cmd); err != nil {
					return err
				}
			case cmd.usage != "":
				if err := s.writeLine(cmd.usage); err != nil {
					return err
				}
			}
			if err := s.prompt(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) submit(ctx context.Context, cmd command) error {
	payload, err := json.Marshal(cmd.payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", cmd.typ, err)
	}
	if _, err := s.engine.Submit(ctx, s.viewer, cmd.typ, payload); err != nil {
		// The attempt never entered the log; tell the player, keep the
		// session alive.
		log.GetLogger(ctx).Warnf("submitting %s for %s: %v", cmd.typ, s.viewer, err)
		return s.writeLine("The world did not hear you. Try again.")
	}
	return nil
}

// ack confirms receipt after the packet was written out. Failures are
// harmless: dispatch keeps the packet and redelivers.
func (s *Session) ack(ctx context.Context, info *perception.Information) {
	data, err := json.Marshal(dispatch.Ack{Viewer: s.viewer, PacketID: info.PacketID})
	if err != nil {
		return
	}
	if err := s.transport.Publish(messaging.SubjectAck, data); err != nil {
		log.GetLogger(ctx).Warnf("acking %s: %v", info.PacketID, err)
	}
}

func (s *Session) prompt() error {
	_, err := s.conn.Write([]byte("> "))
	return err
}

func (s *Session) writeLine(msg string) error {
	_, err := s.conn.Write([]byte(msg + "\n"))
	return err
}
