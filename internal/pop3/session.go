package pop3

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// Session states for the POP3 state machine.
const (
	stateAuthorization = iota
	stateTransaction
)

// idleTimeout is the maximum time a session can remain idle before being
// closed.
const idleTimeout = 60 * time.Second

// Session represents a single POP3 client connection and manages the POP3
// protocol state machine.
type Session struct {
	conn       net.Conn
	reader     *bufio.Reader
	writer     *bufio.Writer
	state      int
	postOffice PostOffice
	hostname   string

	// Authorization state
	user string

	// Transaction state
	mailbox  Mailbox
	messages []Message
}

// NewSession creates a new POP3 session for the given connection.
func NewSession(conn net.Conn, po PostOffice, hostname string) *Session {
	return &Session{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		writer:     bufio.NewWriter(conn),
		state:      stateAuthorization,
		postOffice: po,
		hostname:   hostname,
	}
}

// Handle runs the POP3 session, processing commands until the client
// disconnects or an error occurs.
func (s *Session) Handle(ctx context.Context) {
	defer s.conn.Close()

	s.writeLine("+OK %s POP3 ready", s.hostname)

	for {
		select {
		case <-ctx.Done():
			s.writeLine("-ERR service shutting down")
			return
		default:
		}

		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			slog.Error("failed to set connection deadline", "error", err)
			return
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				slog.Debug("connection read error", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		done := s.handleCommand(ctx, cmd, arg)
		if done {
			return
		}
	}
}

// handleCommand processes a single POP3 command and returns true if the
// session should end.
func (s *Session) handleCommand(ctx context.Context, cmd, arg string) bool {
	switch cmd {
	case "CAPA":
		s.handleCAPA()
	case "USER":
		s.handleUSER(arg)
	case "PASS":
		s.handlePASS(ctx, arg)
	case "STAT":
		s.handleSTAT()
	case "LIST":
		s.handleLIST(arg)
	case "UIDL":
		s.handleUIDL(arg)
	case "RETR":
		s.handleRETR(ctx, arg)
	case "DELE":
		s.handleDELE(arg)
	case "RSET":
		s.handleRSET()
	case "NOOP":
		s.writeLine("+OK")
	case "QUIT":
		s.handleQUIT()
		return true
	default:
		s.writeLine("-ERR unrecognized command")
	}
	return false
}

// handleCAPA lists server capabilities; valid in both states.
func (s *Session) handleCAPA() {
	s.writeLine("+OK capability list follows")
	s.writeLine("USER")
	s.writeLine("UIDL")
	s.writeLine(".")
}

// handleUSER records the user name for the following PASS command.
func (s *Session) handleUSER(arg string) {
	if s.state != stateAuthorization {
		s.writeLine("-ERR already authenticated")
		return
	}
	if arg == "" {
		s.writeLine("-ERR syntax: USER name")
		return
	}
	s.user = arg
	s.writeLine("+OK")
}

// handlePASS authenticates against the post office and opens the mailbox.
func (s *Session) handlePASS(ctx context.Context, arg string) {
	if s.state != stateAuthorization {
		s.writeLine("-ERR already authenticated")
		return
	}
	if s.user == "" {
		s.writeLine("-ERR send USER first")
		return
	}

	mailbox, err := s.postOffice.OpenMailbox(ctx, s.user, arg)
	if err != nil {
		slog.Info("POP3 authentication failed",
			"user", s.user,
			"error", err,
		)
		s.writeLine("-ERR [AUTH] authentication failed")
		s.user = ""
		return
	}

	messages, err := mailbox.ListMessages()
	if err != nil {
		slog.Error("failed to list mailbox",
			"user", s.user,
			"error", err,
		)
		mailbox.Close()
		s.writeLine("-ERR mailbox unavailable")
		s.user = ""
		return
	}

	s.mailbox = mailbox
	s.messages = messages
	s.state = stateTransaction
	s.writeLine("+OK mailbox locked and ready")
}

// handleSTAT reports message count and total size, excluding deleted
// messages.
func (s *Session) handleSTAT() {
	if s.state != stateTransaction {
		s.writeLine("-ERR not authenticated")
		return
	}

	count, size := 0, 0
	for _, msg := range s.messages {
		if msg.Deleted() {
			continue
		}
		count++
		size += msg.Size()
	}
	s.writeLine("+OK %d %d", count, size)
}

// handleLIST reports the scan listing for one message or all of them.
func (s *Session) handleLIST(arg string) {
	s.listing(arg, "scan listing", func(msg Message) string {
		return strconv.Itoa(msg.Size())
	})
}

// handleUIDL reports the unique-id listing for one message or all of them.
func (s *Session) handleUIDL(arg string) {
	s.listing(arg, "unique-id listing", func(msg Message) string {
		return msg.UIDL()
	})
}

// listing implements the shared LIST/UIDL form: a single response when a
// message number is given, a multi-line response otherwise.
func (s *Session) listing(arg, name string, value func(Message) string) {
	if s.state != stateTransaction {
		s.writeLine("-ERR not authenticated")
		return
	}

	if arg != "" {
		msg, err := s.message(arg)
		if err != nil {
			s.writeLine("-ERR %s", err)
			return
		}
		s.writeLine("+OK %d %s", msg.ID(), value(msg))
		return
	}

	s.writeLine("+OK %s follows", name)
	for _, msg := range s.messages {
		if msg.Deleted() {
			continue
		}
		s.writeLine("%d %s", msg.ID(), value(msg))
	}
	s.writeLine(".")
}

// handleRETR streams the full message source, dot-stuffed.
func (s *Session) handleRETR(ctx context.Context, arg string) {
	if s.state != stateTransaction {
		s.writeLine("-ERR not authenticated")
		return
	}

	msg, err := s.message(arg)
	if err != nil {
		s.writeLine("-ERR %s", err)
		return
	}

	body, err := s.mailbox.Retrieve(ctx, msg)
	if err != nil {
		slog.Error("failed to retrieve message",
			"user", s.user,
			"message", msg.ID(),
			"error", err,
		)
		s.writeLine("-ERR message unavailable")
		return
	}

	s.writeLine("+OK message follows")
	s.writeMultiline(body)
	s.writeLine(".")
}

// handleDELE marks a message as deleted; the backend commits on QUIT.
func (s *Session) handleDELE(arg string) {
	if s.state != stateTransaction {
		s.writeLine("-ERR not authenticated")
		return
	}

	msg, err := s.message(arg)
	if err != nil {
		s.writeLine("-ERR %s", err)
		return
	}
	if err := s.mailbox.Delete(msg); err != nil {
		s.writeLine("-ERR %s", err)
		return
	}
	s.writeLine("+OK message deleted")
}

// handleRSET unmarks all deletions.
func (s *Session) handleRSET() {
	if s.state != stateTransaction {
		s.writeLine("-ERR not authenticated")
		return
	}
	s.mailbox.Reset()
	s.writeLine("+OK")
}

// handleQUIT enters the update phase: an authenticated mailbox is closed,
// committing pending deletions.
func (s *Session) handleQUIT() {
	if s.state == stateTransaction {
		if err := s.mailbox.Close(); err != nil {
			slog.Error("failed to close mailbox",
				"user", s.user,
				"error", err,
			)
			s.writeLine("-ERR some messages were not removed")
			return
		}
	}
	s.writeLine("+OK bye")
}

// message resolves a command argument to a live (non-deleted) message.
func (s *Session) message(arg string) (Message, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid message number")
	}
	if n < 1 || n > len(s.messages) {
		return nil, fmt.Errorf("no such message")
	}
	msg := s.messages[n-1]
	if msg.Deleted() {
		return nil, fmt.Errorf("message is deleted")
	}
	return msg, nil
}

// writeMultiline writes body as CRLF-terminated, dot-stuffed lines.
func (s *Session) writeMultiline(body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, ".") {
			line = "." + line
		}
		s.writeLine("%s", line)
	}
	if err := scanner.Err(); err != nil {
		slog.Error("error streaming message body", "error", err)
	}
}

// writeLine writes a formatted line to the client, followed by \r\n.
func (s *Session) writeLine(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	_, err := s.writer.WriteString(line + "\r\n")
	if err != nil {
		slog.Error("failed to write to client", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		slog.Error("failed to flush to client", "error", err)
	}
}

// parseCommand splits a POP3 command line into the command verb and its
// argument.
func parseCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}
