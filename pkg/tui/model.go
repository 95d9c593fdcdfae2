// Package tui is the interactive terminal front end: the profile home view
// with its chat, the login form and the admin panel.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/portfolia/console/pkg/admin"
	"github.com/portfolia/console/pkg/chat"
	"github.com/portfolia/console/pkg/gateway"
	"github.com/portfolia/console/pkg/profile"
)

// ChatSession is the conversation the home view drives.
type ChatSession interface {
	Send(ctx context.Context, text string) bool
	Trigger(ctx context.Context, text string) bool
	Turns() []chat.Turn
	Pending() bool
	Subscribe() <-chan struct{}
}

// AuthSession is the login state shared by every view.
type AuthSession interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context)
	IsAdmin() bool
}

// AdminConsole runs the admin panel's operations.
type AdminConsole interface {
	Upload(ctx context.Context, path string) (admin.UploadResult, error)
	ArmReset() error
	CancelReset()
	ConfirmReset(ctx context.Context) (string, error)
	Stats(ctx context.Context) (gateway.Stats, error)
}

// Options wires the model to its collaborators.
type Options struct {
	Chat    ChatSession
	Auth    AuthSession
	Admin   AdminConsole
	Profile *profile.Profile
	BaseURL string
	// StartDir is where the upload file picker opens.
	StartDir string
}

var errMissingCredentials = errors.New("please enter username and password")

type state int

const (
	stateHome state = iota
	stateLogin
	stateAdmin
	stateConfirmReset
)

type homeFocus int

const (
	focusChat homeFocus = iota
	focusProjects
)

type adminTab int

const (
	tabUpload adminTab = iota
	tabSystem
)

type (
	chatUpdateMsg   struct{}
	sendDoneMsg     struct{ accepted bool }
	loginResultMsg  struct{ err error }
	uploadResultMsg struct {
		res admin.UploadResult
		err error
	}
	resetResultMsg struct {
		status string
		err    error
	}
	statsMsg struct {
		stats gateway.Stats
		err   error
	}
)

// Model is the root bubbletea model.
type Model struct {
	ctx     context.Context
	chat    ChatSession
	auth    AuthSession
	console AdminConsole
	profile *profile.Profile
	baseURL string
	updates <-chan struct{}

	state         state
	focus         homeFocus
	projectCursor int
	tab           adminTab
	width         int
	height        int

	viewport   viewport.Model
	textarea   textarea.Model
	username   textinput.Model
	password   textinput.Model
	filepicker filepicker.Model
	spinner    spinner.Model
	renderer   *glamour.TermRenderer

	sending   bool
	loggingIn bool
	uploading bool
	resetting bool
	stats     gateway.Stats

	status string
	err    error
}

// New builds the root model. The returned model starts on the home view.
func New(ctx context.Context, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask me anything..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 1000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	user := textinput.New()
	user.Placeholder = "username"
	user.Prompt = "Username: "
	user.CharLimit = 128

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.Prompt = "Password: "
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.CharLimit = 128

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = senderStyle

	startDir := opts.StartDir
	if startDir == "" {
		startDir = "."
	}

	m := Model{
		ctx:        ctx,
		chat:       opts.Chat,
		auth:       opts.Auth,
		console:    opts.Admin,
		profile:    opts.Profile,
		baseURL:    opts.BaseURL,
		updates:    opts.Chat.Subscribe(),
		viewport:   viewport.New(80, 20),
		textarea:   ta,
		username:   user,
		password:   pass,
		filepicker: newFilePicker(startDir),
		spinner:    sp,
		renderer:   newRenderer(80),
	}
	m.refreshChat()
	return m
}

func newFilePicker(dir string) filepicker.Model {
	fp := filepicker.New()
	fp.CurrentDirectory = dir
	fp.AllowedTypes = admin.AllowedExtensions
	fp.Height = 10
	return fp
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForUpdate(m.updates))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)
		return m, cmd

	case chatUpdateMsg:
		m.refreshChat()
		return m, waitForUpdate(m.updates)

	case sendDoneMsg:
		m.sending = false
		if !msg.accepted {
			slog.Debug("Chat message dropped; a request is already pending")
		}
		return m, nil

	case loginResultMsg:
		m.loggingIn = false
		m.password.Reset()
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = "Logged in"
		return m.enterAdmin()

	case uploadResultMsg:
		m.uploading = false
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
			return m, nil
		}
		m.err = nil
		m.status = msg.res.Status()
		return m, nil

	case resetResultMsg:
		m.resetting = false
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
			return m, nil
		}
		m.err = nil
		m.status = msg.status
		m.stats = nil
		return m, nil

	case statsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.stats = msg.stats
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.state {
		case stateLogin:
			return m.updateLogin(msg)
		case stateAdmin:
			return m.updateAdmin(msg)
		case stateConfirmReset:
			return m.updateConfirmReset(msg)
		default:
			return m.updateHome(msg)
		}
	}

	// Everything else (cursor blinks, directory listings) goes to the
	// components of the current view.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	switch m.state {
	case stateLogin:
		m.username, cmd = m.username.Update(msg)
		cmds = append(cmds, cmd)
		m.password, cmd = m.password.Update(msg)
		cmds = append(cmds, cmd)
	case stateAdmin, stateConfirmReset:
		m.filepicker, cmd = m.filepicker.Update(msg)
		cmds = append(cmds, cmd)
	default:
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) busy() bool {
	return m.sending || m.chat.Pending() || m.loggingIn || m.uploading || m.resetting
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.textarea.SetWidth(width)
	m.viewport.Width = width

	vh := height - m.textarea.Height() - lipgloss.Height(m.profileView()) - 6
	if vh < 3 {
		vh = 3
	}
	m.viewport.Height = vh

	fh := height - 12
	if fh < 3 {
		fh = 3
	}
	m.filepicker.Height = fh

	m.renderer = newRenderer(width - 4)
	m.refreshChat()
}

func (m *Model) refreshChat() {
	m.viewport.SetContent(renderTurns(m.chat.Turns(), m.renderer))
	m.viewport.GotoBottom()
}

// Home

func (m Model) updateHome(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab":
		if m.focus == focusChat && m.profile != nil && len(m.profile.Projects) > 0 {
			m.focus = focusProjects
			m.textarea.Blur()
		} else {
			m.focus = focusChat
			m.textarea.Focus()
		}
		return m, nil
	case "ctrl+l":
		if m.auth.IsAdmin() {
			return m.enterAdmin()
		}
		return m.enterLogin()
	case "ctrl+a":
		if !m.auth.IsAdmin() {
			m.err = admin.ErrForbidden
			return m, nil
		}
		return m.enterAdmin()
	case "ctrl+o":
		return m.logout()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusProjects {
		switch msg.String() {
		case "up", "k":
			if m.projectCursor > 0 {
				m.projectCursor--
			}
		case "down", "j":
			if m.projectCursor < len(m.profile.Projects)-1 {
				m.projectCursor++
			}
		case "enter":
			return m.askAboutProject()
		}
		return m, nil
	}

	if msg.Type == tea.KeyEnter {
		return m.sendMessage()
	}
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) sendMessage() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.textarea.Value())
	// Session.Send only marks itself pending once its cmd runs, so the
	// model holds the input until the send has finished.
	if text == "" || m.sending || m.chat.Pending() {
		return m, nil
	}
	m.sending = true
	m.err = nil
	m.textarea.Reset()
	return m, tea.Batch(m.sendCmd(text, m.chat.Send), m.spinner.Tick)
}

func (m Model) askAboutProject() (tea.Model, tea.Cmd) {
	if m.sending || m.chat.Pending() {
		return m, nil
	}
	m.sending = true
	p := m.profile.Projects[m.projectCursor]
	m.focus = focusChat
	m.textarea.Focus()
	return m, tea.Batch(m.sendCmd(m.profile.AskAbout(p.Title), m.chat.Trigger), m.spinner.Tick)
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	if !m.auth.IsAdmin() {
		return m, nil
	}
	m.auth.Logout(m.ctx)
	m.state = stateHome
	m.err = nil
	m.status = "Logged out"
	m.stats = nil
	m.textarea.Focus()
	return m, nil
}

// Login

func (m Model) enterLogin() (tea.Model, tea.Cmd) {
	m.state = stateLogin
	m.err = nil
	m.status = ""
	m.textarea.Blur()
	m.password.Blur()
	cmd := m.username.Focus()
	return m, cmd
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateHome
		m.err = nil
		m.username.Blur()
		m.password.Blur()
		cmd := m.textarea.Focus()
		return m, cmd
	case "tab", "shift+tab", "up", "down":
		cmd := m.toggleLoginFocus()
		return m, cmd
	case "enter":
		if m.username.Focused() {
			cmd := m.toggleLoginFocus()
			return m, cmd
		}
		return m.submitLogin()
	}

	var cmd tea.Cmd
	if m.username.Focused() {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *Model) toggleLoginFocus() tea.Cmd {
	if m.username.Focused() {
		m.username.Blur()
		return m.password.Focus()
	}
	m.password.Blur()
	return m.username.Focus()
}

func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	if m.loggingIn {
		return m, nil
	}
	user := strings.TrimSpace(m.username.Value())
	pass := m.password.Value()
	if user == "" || pass == "" {
		m.err = errMissingCredentials
		return m, nil
	}
	m.loggingIn = true
	m.err = nil
	return m, tea.Batch(m.loginCmd(user, pass), m.spinner.Tick)
}

// Admin

func (m Model) enterAdmin() (tea.Model, tea.Cmd) {
	m.state = stateAdmin
	m.username.Blur()
	m.password.Blur()
	m.textarea.Blur()
	return m, m.filepicker.Init()
}

func (m Model) updateAdmin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The gate is re-checked on every key; a logout elsewhere closes the panel.
	if !m.auth.IsAdmin() {
		m.state = stateHome
		m.err = admin.ErrForbidden
		cmd := m.textarea.Focus()
		return m, cmd
	}

	switch msg.String() {
	case "esc":
		m.state = stateHome
		m.err = nil
		m.status = ""
		cmd := m.textarea.Focus()
		return m, cmd
	case "tab":
		if m.tab == tabUpload {
			m.tab = tabSystem
		} else {
			m.tab = tabUpload
		}
		return m, nil
	case "ctrl+o":
		return m.logout()
	}

	if m.tab == tabSystem {
		switch msg.String() {
		case "r":
			if m.resetting {
				return m, nil
			}
			if err := m.console.ArmReset(); err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			m.state = stateConfirmReset
		case "s":
			return m, m.statsCmd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.filepicker, cmd = m.filepicker.Update(msg)

	if ok, path := m.filepicker.DidSelectFile(msg); ok {
		if m.uploading {
			return m, cmd
		}
		m.uploading = true
		m.err = nil
		m.status = "Uploading " + path + "..."
		return m, tea.Batch(cmd, m.uploadCmd(path), m.spinner.Tick)
	}
	if ok, path := m.filepicker.DidSelectDisabledFile(msg); ok {
		m.err = fmt.Errorf("Unsupported file: %s. Supports PDF, TXT, MD", path)
		return m, cmd
	}
	return m, cmd
}

func (m Model) updateConfirmReset(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.state = stateAdmin
		m.resetting = true
		m.status = "Resetting knowledge base..."
		return m, tea.Batch(m.resetCmd(), m.spinner.Tick)
	case "n", "N", "esc":
		m.console.CancelReset()
		m.state = stateAdmin
	}
	return m, nil
}

// Commands

func (m Model) sendCmd(text string, send func(context.Context, string) bool) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return sendDoneMsg{accepted: send(ctx, text)}
	}
}

func (m Model) loginCmd(user, pass string) tea.Cmd {
	ctx, auth := m.ctx, m.auth
	return func() tea.Msg {
		return loginResultMsg{err: auth.Login(ctx, user, pass)}
	}
}

func (m Model) uploadCmd(path string) tea.Cmd {
	ctx, console := m.ctx, m.console
	return func() tea.Msg {
		res, err := console.Upload(ctx, path)
		return uploadResultMsg{res: res, err: err}
	}
}

func (m Model) resetCmd() tea.Cmd {
	ctx, console := m.ctx, m.console
	return func() tea.Msg {
		status, err := console.ConfirmReset(ctx)
		return resetResultMsg{status: status, err: err}
	}
}

func (m Model) statsCmd() tea.Cmd {
	ctx, console := m.ctx, m.console
	return func() tea.Msg {
		stats, err := console.Stats(ctx)
		return statsMsg{stats: stats, err: err}
	}
}

func waitForUpdate(sub <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		_, ok := <-sub
		if !ok {
			return nil
		}
		return chatUpdateMsg{}
	}
}
