package ftptest

import (
	"bufio"
	"fmt"
	"io/fs"
	"net"
	"path"
	"strings"
	"time"
)

// modifyFact is the MLSD modify fact for every fixture entry.
var modifyFact = fixtureTime.Format("20060102150405")

// session is one client connection being served.
type session struct {
	srv    *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	user     string
	loggedIn bool

	// current working directory
	cwd     *node
	cwdPath string

	// pasv accepts the next data connection
	pasv net.Listener
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		srv:     srv,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		writer:  bufio.NewWriter(conn),
		cwd:     srv.root,
		cwdPath: "/",
	}
}

// commandHandlers maps FTP commands to their handlers.
// USER, PASS, QUIT and NOOP are handled specially in handleCommand.
var commandHandlers = map[string]func(*session, string){
	"SYST": (*session).handleSYST,
	"TYPE": (*session).handleTYPE,
	"FEAT": (*session).handleFEAT,
	"PWD":  (*session).handlePWD,
	"CWD":  (*session).handleCWD,
	"CDUP": (*session).handleCDUP,
	"PASV": (*session).handlePASV,
	"EPSV": (*session).handleEPSV,
	"LIST": (*session).handleLIST,
	"NLST": (*session).handleNLST,
	"MLSD": (*session).handleMLSD,
}

func (s *session) serve() {
	defer s.close()

	s.reply(220, "ftptest server ready.")

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		if !s.handleCommand(strings.TrimRight(line, "\r\n")) {
			return
		}
	}
}

func (s *session) close() {
	if s.pasv != nil {
		s.pasv.Close()
	}
	s.conn.Close()
}

// handleCommand dispatches one command line. It reports whether the
// session should keep going.
func (s *session) handleCommand(line string) bool {
	if line == "" {
		return true
	}

	cmd, arg, _ := strings.Cut(line, " ")
	cmd = strings.ToUpper(cmd)

	logArg := arg
	if cmd == "PASS" {
		logArg = "***"
	}
	s.srv.logger.Debug("command received",
		"remote", s.conn.RemoteAddr().String(),
		"cmd", cmd,
		"arg", logArg,
	)

	switch cmd {
	case "USER":
		s.user = arg
		s.reply(331, "User name okay, need password.")
	case "PASS":
		s.handlePASS(arg)
	case "QUIT":
		s.reply(221, "Service closing control connection.")
		return false
	case "NOOP":
		s.reply(200, "OK.")
	default:
		if handler, ok := commandHandlers[cmd]; ok {
			handler(s, arg)
		} else {
			s.reply(502, "Command not implemented.")
		}
	}
	return true
}

func (s *session) handlePASS(pass string) {
	if auth := s.srv.auth; auth != nil && (s.user != auth.user || pass != auth.password) {
		s.reply(530, "Login incorrect.")
		return
	}
	s.loggedIn = true
	s.reply(230, "User logged in, proceed.")
}

// requireLogin replies 530 and reports false when the session has not
// authenticated yet.
func (s *session) requireLogin() bool {
	if !s.loggedIn {
		s.reply(530, "Please login with USER and PASS.")
	}
	return s.loggedIn
}

func (s *session) handleSYST(_ string) {
	s.reply(215, "UNIX Type: L8")
}

func (s *session) handleTYPE(arg string) {
	if !s.requireLogin() {
		return
	}
	switch strings.ToUpper(arg) {
	case "A", "A N":
		s.reply(200, "Type set to A.")
	case "I", "L 8":
		s.reply(200, "Type set to I.")
	default:
		s.reply(504, "Type not supported.")
	}
}

func (s *session) handleFEAT(_ string) {
	features := []string{
		"UTF8",
		"PASV",
		"TVFS",
		"MLST type*;size*;modify*;",
	}
	if !s.srv.disableEPSV {
		features = append(features, "EPSV")
	}
	if !s.srv.disableMLSD {
		features = append(features, "MLSD")
	}

	_, _ = s.writer.WriteString("211-Features:\r\n")
	for _, f := range features {
		_, _ = s.writer.WriteString(" " + f + "\r\n")
	}
	_, _ = s.writer.WriteString("211 End\r\n")
	_ = s.writer.Flush()
}

func (s *session) handlePWD(_ string) {
	if !s.requireLogin() {
		return
	}
	s.reply(257, fmt.Sprintf("%q is the current directory.", s.cwdPath))
}

func (s *session) handleCWD(arg string) {
	if !s.requireLogin() {
		return
	}
	if arg == "" {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}

	n, full, err := s.lookup(arg)
	if err != nil || !n.dir || s.srv.failCWD[full] {
		s.reply(550, "Failed to change directory.")
		return
	}

	s.cwd = n
	s.cwdPath = full
	s.reply(250, "Directory successfully changed.")
}

func (s *session) handleCDUP(_ string) {
	s.handleCWD("..")
}

func (s *session) handlePASV(_ string) {
	if !s.requireLogin() {
		return
	}
	ln, err := s.listenData()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}

	port := ln.Addr().(*net.TCPAddr).Port
	s.reply(227, fmt.Sprintf("Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256))
}

func (s *session) handleEPSV(_ string) {
	if !s.requireLogin() {
		return
	}
	if s.srv.disableEPSV {
		s.reply(502, "Command not implemented.")
		return
	}
	ln, err := s.listenData()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	s.reply(229, fmt.Sprintf("Entering Extended Passive Mode (|||%d|)", ln.Addr().(*net.TCPAddr).Port))
}

// listenData opens the listener for the next data connection, replacing
// any unclaimed one.
func (s *session) listenData() (net.Listener, error) {
	if s.pasv != nil {
		s.pasv.Close()
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.pasv = ln
	return ln, nil
}

// dataConn accepts the data connection announced by the last PASV or
// EPSV reply.
func (s *session) dataConn() (net.Conn, error) {
	if s.pasv == nil {
		return nil, fmt.Errorf("no data connection setup")
	}
	if tcp, ok := s.pasv.(*net.TCPListener); ok {
		_ = tcp.SetDeadline(time.Now().Add(5 * time.Second))
	}

	conn, err := s.pasv.Accept()
	s.pasv.Close()
	s.pasv = nil
	return conn, err
}

// listTarget resolves the directory a listing command applies to: the
// argument when given, the working directory otherwise.
func (s *session) listTarget(arg string) (*node, bool) {
	if arg == "" {
		return s.cwd, true
	}
	n, _, err := s.lookup(arg)
	if err != nil || !n.dir {
		return nil, false
	}
	return n, true
}

func (s *session) handleLIST(arg string) {
	if !s.requireLogin() {
		return
	}

	target, ok := s.listTarget(arg)
	if !ok {
		s.reply(550, "Failed to list directory.")
		return
	}

	conn, err := s.dataConn()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "Here comes the directory listing.")

	for _, entry := range target.children {
		fmt.Fprintf(conn, "%s\r\n", listLine(entry))
	}
	for _, line := range s.srv.extraList {
		fmt.Fprintf(conn, "%s\r\n", line)
	}

	s.reply(226, "Directory send OK.")
}

func (s *session) handleNLST(arg string) {
	if !s.requireLogin() {
		return
	}

	target, ok := s.listTarget(arg)
	if !ok {
		s.reply(550, "Failed to list directory.")
		return
	}

	conn, err := s.dataConn()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "Here comes the directory listing.")

	for _, entry := range target.children {
		fmt.Fprintf(conn, "%s\r\n", entry.name)
	}

	s.reply(226, "Directory send OK.")
}

func (s *session) handleMLSD(arg string) {
	if s.srv.disableMLSD {
		s.reply(502, "Command not implemented.")
		return
	}
	if !s.requireLogin() {
		return
	}

	target, ok := s.listTarget(arg)
	if !ok {
		s.reply(550, "Failed to list directory.")
		return
	}

	conn, err := s.dataConn()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	defer conn.Close()

	s.reply(150, "MLSD listing started.")

	// Real servers report the directory itself and its parent first.
	fmt.Fprintf(conn, "type=cdir;size=0;modify=%s; .\r\n", modifyFact)
	if target != s.srv.root {
		fmt.Fprintf(conn, "type=pdir;size=0;modify=%s; ..\r\n", modifyFact)
	}
	for _, entry := range target.children {
		fmt.Fprintf(conn, "%s\r\n", mlsdLine(entry))
	}

	s.reply(226, "MLSD listing complete.")
}

// lookup resolves p, absolute or relative to the working directory,
// against the fixture tree. Dot and dot-dot elements resolve lexically
// and cannot escape the root.
func (s *session) lookup(p string) (*node, string, error) {
	full := p
	if !strings.HasPrefix(p, "/") {
		full = path.Join(s.cwdPath, p)
	}
	full = path.Clean(full)

	n := s.srv.root
	if full != "/" {
		for part := range strings.SplitSeq(strings.TrimPrefix(full, "/"), "/") {
			child := n.child(part)
			if child == nil {
				return nil, "", fs.ErrNotExist
			}
			n = child
		}
	}
	return n, full, nil
}

// listLine renders a Unix-style LIST line for a fixture entry.
func listLine(n *node) string {
	mode, size := "-rw-r--r--", len(n.content)
	if n.dir {
		mode, size = "drwxr-xr-x", 4096
	}
	return fmt.Sprintf("%s 1 owner group %d %s %s",
		mode, size, fixtureTime.Format("Jan 02 15:04"), n.name)
}

// mlsdLine renders an MLSD fact line for a fixture entry.
func mlsdLine(n *node) string {
	t, size := "file", len(n.content)
	if n.dir {
		t, size = "dir", 0
	}
	return fmt.Sprintf("type=%s;size=%d;modify=%s; %s", t, size, modifyFact, n.name)
}

// reply sends a response to the client.
func (s *session) reply(code int, message string) {
	fmt.Fprintf(s.writer, "%d %s\r\n", code, message)
	_ = s.writer.Flush()
	s.srv.logger.Debug("reply sent", "code", code, "message", message)
}
