// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/parlor-chat/parlor/chat"
	"github.com/parlor-chat/parlor/client"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("25")).
			Padding(0, 1)
	senderStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("45"))
	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).Italic(true)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))
)

// chatLineMsg carries one pushed room message into the update loop.
type chatLineMsg struct {
	message chat.ChatMessage
}

// announcementMsg carries one membership announcement.
type announcementMsg struct {
	announcement chat.RoomAnnouncement
}

// noticeMsg is local feedback: command results, status changes.
type noticeMsg struct {
	text string
}

// errMsg surfaces a failed session call in the transcript.
type errMsg struct {
	err error
}

type model struct {
	session *client.Client

	input    textinput.Model
	view     viewport.Model
	lines    []string
	room     string
	loggedIn bool
	ready    bool
	width    int
}

func newModel(session *client.Client) model {
	input := textinput.New()
	input.Placeholder = "message, or /help"
	input.Prompt = promptStyle.Render("> ")
	input.Focus()
	return model{session: session, input: input}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.login())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - 3
		if height < 1 {
			height = 1
		}
		m.view.Width = msg.Width
		m.view.Height = height
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, m.quit()
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			return m, m.execute(line)
		}

	case chatLineMsg:
		m.append(fmt.Sprintf("[%s] %s %s",
			msg.message.Room,
			senderStyle.Render(msg.message.From+":"),
			msg.message.Text))
		return m, nil

	case announcementMsg:
		a := msg.announcement
		var verb string
		switch a.Announcement {
		case chat.AnnounceJoin:
			verb = "joined"
		case chat.AnnounceLeave:
			verb = "left"
		case chat.AnnounceDisconnect:
			verb = "disconnected from"
		}
		m.append(noticeStyle.Render(fmt.Sprintf("* %s %s %s", a.Who, verb, a.Room)))
		return m, nil

	case noticeMsg:
		m.append(noticeStyle.Render(msg.text))
		return m, nil

	case errMsg:
		m.append(errorStyle.Render("! " + msg.err.Error()))
		return m, nil
	}

	var inputCmd, viewCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.view, viewCmd = m.view.Update(msg)
	return m, tea.Batch(inputCmd, viewCmd)
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}
	room := m.room
	if room == "" {
		room = "(no room)"
	}
	presence := "online"
	if !m.loggedIn {
		presence = "offline"
	}
	header := headerStyle.Width(m.width).Render(
		fmt.Sprintf("parlor — %s — %s — %s", m.session.Who(), room, presence))
	return header + "\n" + m.view.View() + "\n" + m.input.View()
}

// append adds one wrapped line to the transcript and scrolls to it.
func (m *model) append(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	wrapped := make([]string, len(m.lines))
	for i, line := range m.lines {
		wrapped[i] = ansi.Wrap(line, m.view.Width, "")
	}
	m.view.SetContent(strings.Join(wrapped, "\n"))
	m.view.GotoBottom()
}

// execute turns one submitted input line into a session call. Slash
// commands drive the session; anything else is chatter for the
// current room.
func (m *model) execute(line string) tea.Cmd {
	if !strings.HasPrefix(line, "/") {
		if m.room == "" {
			m.append(errorStyle.Render("! join a room first: /join <room>"))
			return nil
		}
		room, text := m.room, line
		m.append(fmt.Sprintf("[%s] %s %s", room, senderStyle.Render("you:"), text))
		return m.call(func(ctx context.Context) (string, error) {
			return "", m.session.Send(ctx, room, text)
		})
	}

	command, argument, _ := strings.Cut(line[1:], " ")
	argument = strings.TrimSpace(argument)
	switch command {
	case "join":
		if argument == "" {
			m.append(errorStyle.Render("! usage: /join <room>"))
			return nil
		}
		m.room = argument
		return m.call(func(ctx context.Context) (string, error) {
			if err := m.session.JoinRoom(ctx, argument); err != nil {
				return "", err
			}
			return "joined " + argument, nil
		})
	case "leave":
		if argument == "" {
			argument = m.room
		}
		if argument == "" {
			m.append(errorStyle.Render("! usage: /leave <room>"))
			return nil
		}
		if argument == m.room {
			m.room = ""
		}
		return m.call(func(ctx context.Context) (string, error) {
			if err := m.session.LeaveRoom(ctx, argument); err != nil {
				return "", err
			}
			return "left " + argument, nil
		})
	case "switch":
		if argument == "" {
			m.append(errorStyle.Render("! usage: /switch <room>"))
			return nil
		}
		m.room = argument
		return nil
	case "rooms":
		return m.call(func(ctx context.Context) (string, error) {
			rooms, err := m.session.AllRooms(ctx)
			if err != nil {
				return "", err
			}
			return "active rooms: " + joinSorted(rooms), nil
		})
	case "mine":
		return m.call(func(ctx context.Context) (string, error) {
			rooms, err := m.session.MyRooms(ctx)
			if err != nil {
				return "", err
			}
			return "your rooms: " + joinSorted(rooms), nil
		})
	case "who":
		if argument == "" {
			argument = m.room
		}
		if argument == "" {
			m.append(errorStyle.Render("! usage: /who <room>"))
			return nil
		}
		return m.call(func(ctx context.Context) (string, error) {
			clients, err := m.session.RoomClients(ctx, argument)
			if chat.IsError(err, chat.CodeNoSuchRoom) {
				return "no such room: " + argument, nil
			}
			if err != nil {
				return "", err
			}
			return "online in " + argument + ": " + joinSorted(clients), nil
		})
	case "logout":
		m.loggedIn = false
		return m.call(func(ctx context.Context) (string, error) {
			return "logged out; your rooms are kept", m.session.Logout(ctx)
		})
	case "login":
		return m.login()
	case "help":
		m.append(noticeStyle.Render(
			"/join <room>  /leave [room]  /switch <room>  /rooms  /mine  /who [room]  /logout  /login  /quit"))
		return nil
	case "quit":
		return m.quit()
	default:
		m.append(errorStyle.Render("! unknown command: /" + command))
		return nil
	}
}

// call runs one blocking session call off the update loop and feeds
// the result back as a notice or error.
func (m *model) call(fn func(context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		notice, err := fn(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		if notice == "" {
			return nil
		}
		return noticeMsg{text: notice}
	}
}

func (m *model) login() tea.Cmd {
	m.loggedIn = true
	return m.call(func(ctx context.Context) (string, error) {
		return "logged in as " + m.session.Who(), m.session.Login(ctx)
	})
}

func (m *model) quit() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
		defer cancel()
		// Best effort; the server treats a vanished client as
		// disconnected either way.
		session.Logout(ctx)
		return tea.Quit()
	}
}

const quitTimeout = 3 * time.Second

func joinSorted(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
