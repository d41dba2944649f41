package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"visor/internal/domain"
	"visor/internal/wizard"
)

type privacyWizardKeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	AllPublic  key.Binding
	AllPrivate key.Binding
	Next       key.Binding
	Back       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func (k privacyWizardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Back, k.Toggle, k.Help, k.Quit}
}

func (k privacyWizardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle, k.AllPublic, k.AllPrivate},
		{k.Next, k.Back, k.Help, k.Quit},
	}
}

func defaultPrivacyWizardKeyMap() privacyWizardKeyMap {
	return privacyWizardKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up", "previous component"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down", "next component"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "toggle visibility"),
		),
		AllPublic: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "make all public"),
		),
		AllPrivate: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "make all private"),
		),
		Next: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "next/confirm"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back/cancel"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "cancel and quit"),
		),
	}
}

var (
	textColor      = lipgloss.AdaptiveColor{Light: "#1F2328", Dark: "#E6EDF3"}
	mutedTextColor = lipgloss.AdaptiveColor{Light: "#57606A", Dark: "#8B949E"}
	borderColor    = lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#30363D"}
	accentColor    = lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#58A6FF"}
	errorFgColor   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	warningColor   = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}
	successColor   = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}

	pageStyle = lipgloss.NewStyle().Padding(1, 2)

	titleBadgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("31")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(textColor)
	errorStyle  = lipgloss.NewStyle().Foreground(errorFgColor)
	hintStyle   = lipgloss.NewStyle().Foreground(mutedTextColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(successColor)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 2)

	alertStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(errorFgColor).
			PaddingLeft(1)

	helpPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	pageTabStyle = lipgloss.NewStyle().
			Foreground(mutedTextColor).
			Padding(0, 1)

	pageTabCurrentStyle = pageTabStyle.
				Foreground(textColor).
				Background(lipgloss.AdaptiveColor{Light: "#DDF4FF", Dark: "#13233A"}).
				Bold(true)
)

const nodeTableHeight = 10

type privacyWizardModel struct {
	input   PrivacyWizardInput
	machine *wizard.Machine
	openErr error

	width  int
	height int

	help      help.Model
	keys      privacyWizardKeyMap
	nodeTable table.Model
	diffView  viewport.Model
	rowsStale bool

	errorText   string
	confirmQuit bool
	allowQuit   bool
	committed   bool
}

func runPrivacyWizardInteractive(input PrivacyWizardInput) (PrivacyWizardResult, error) {
	model := newPrivacyWizardModel(input)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithFilter(privacyWizardFilter))
	finalModel, err := program.Run()
	if err != nil {
		return PrivacyWizardResult{}, err
	}
	m, ok := finalModel.(*privacyWizardModel)
	if !ok {
		return PrivacyWizardResult{}, fmt.Errorf("unexpected privacy wizard model type %T", finalModel)
	}
	return PrivacyWizardResult{Committed: m.committed}, nil
}

// A pending change set requires a second Ctrl+C before the program is
// allowed to quit.
func privacyWizardFilter(model tea.Model, msg tea.Msg) tea.Msg {
	if _, ok := msg.(tea.QuitMsg); !ok {
		return msg
	}
	m, ok := model.(*privacyWizardModel)
	if !ok {
		return msg
	}
	if m.machine.Dirty() && !m.allowQuit && !m.committed {
		return nil
	}
	return msg
}

func newPrivacyWizardModel(input PrivacyWizardInput) *privacyWizardModel {
	m := &privacyWizardModel{
		input: input,
		help:  help.New(),
		keys:  defaultPrivacyWizardKeyMap(),
	}
	m.machine = wizard.New(input.Sink)
	m.machine.OnChange(func() { m.rowsStale = true })
	m.openErr = m.machine.Open(input.Source)

	m.nodeTable = table.New(
		table.WithColumns(nodeTableColumns(0)),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(nodeTableHeight),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Foreground(textColor).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(borderColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("33")).
		Bold(true)
	m.nodeTable.SetStyles(styles)

	m.diffView = viewport.New(64, 12)
	m.rebuildRows()
	return m
}

func (m *privacyWizardModel) Init() tea.Cmd {
	return nil
}

func (m *privacyWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Quit):
			if !m.machine.Dirty() || m.confirmQuit {
				m.machine.Cancel()
				m.allowQuit = true
				return m, tea.Quit
			}
			m.confirmQuit = true
			m.errorText = "Pending changes. Press Ctrl+C again to discard and quit."
			return m, nil
		}

		m.confirmQuit = false
		m.errorText = ""

		switch m.machine.Page() {
		case wizard.PageWarning:
			return m.updateWarning(msg)
		case wizard.PageSelect:
			return m.updateSelect(msg)
		case wizard.PageConfirm:
			return m.updateConfirm(msg)
		}
	}
	return m, nil
}

func (m *privacyWizardModel) updateWarning(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m.cancelAndQuit()
	case key.Matches(msg, m.keys.Next):
		if m.openErr != nil {
			return m.cancelAndQuit()
		}
		if m.machine.ViewState().HasChildren {
			if err := m.machine.Next(); err != nil {
				m.errorText = err.Error()
			}
			return m, nil
		}
		// Childless project: confirm applies the root visibility directly.
		return m.commit()
	case key.Matches(msg, m.keys.Toggle):
		if m.openErr != nil {
			return m, nil
		}
		vs := m.machine.ViewState()
		if len(vs.Nodes) == 0 {
			return m, nil
		}
		root := vs.Nodes[0]
		if err := m.machine.SetNode(root.ID, !root.Proposed); err != nil {
			m.errorText = err.Error()
		}
		return m, nil
	}
	return m, nil
}

func (m *privacyWizardModel) updateSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.nodeTable.MoveUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.nodeTable.MoveDown(1)
		return m, nil
	case key.Matches(msg, m.keys.Toggle):
		vs := m.machine.ViewState()
		cursor := m.nodeTable.Cursor()
		if cursor < 0 || cursor >= len(vs.Nodes) {
			return m, nil
		}
		node := vs.Nodes[cursor]
		if err := m.machine.SetNode(node.ID, !node.Proposed); err != nil {
			m.errorText = err.Error()
		}
		m.syncRows()
		return m, nil
	case key.Matches(msg, m.keys.AllPublic):
		if err := m.machine.SelectAll(true); err != nil {
			m.errorText = err.Error()
		}
		m.syncRows()
		return m, nil
	case key.Matches(msg, m.keys.AllPrivate):
		if err := m.machine.SelectAll(false); err != nil {
			m.errorText = err.Error()
		}
		m.syncRows()
		return m, nil
	case key.Matches(msg, m.keys.Next):
		if err := m.machine.Next(); err != nil {
			m.errorText = err.Error()
			return m, nil
		}
		m.diffView.SetContent(m.diffContent())
		m.diffView.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Back):
		return m.cancelAndQuit()
	}
	return m, nil
}

func (m *privacyWizardModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Next):
		return m.commit()
	case key.Matches(msg, m.keys.Back):
		if err := m.machine.Back(); err != nil {
			m.errorText = err.Error()
		}
		m.syncRows()
		return m, nil
	}
	var cmd tea.Cmd
	m.diffView, cmd = m.diffView.Update(msg)
	return m, cmd
}

func (m *privacyWizardModel) commit() (tea.Model, tea.Cmd) {
	if err := m.machine.Confirm(); err != nil {
		// Sink failure keeps the wizard on the confirm page with the
		// proposed state intact; the user may retry or cancel.
		m.errorText = err.Error()
		return m, nil
	}
	m.committed = true
	m.allowQuit = true
	return m, tea.Quit
}

func (m *privacyWizardModel) cancelAndQuit() (tea.Model, tea.Cmd) {
	m.machine.Cancel()
	m.allowQuit = true
	return m, tea.Quit
}

func (m *privacyWizardModel) View() string {
	var b strings.Builder

	title := lipgloss.JoinHorizontal(lipgloss.Center,
		titleBadgeStyle.Render("visor"),
		" "+headerStyle.Render("privacy wizard"),
	)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Bulk privacy change for "+m.input.ProjectName))
	b.WriteString("\n\n")
	b.WriteString(m.pagesHeader())
	b.WriteString("\n")

	content := ""
	switch m.machine.Page() {
	case wizard.PageWarning:
		content = m.viewWarning()
	case wizard.PageSelect:
		content = m.viewSelect()
	case wizard.PageConfirm:
		content = m.viewConfirm()
	}
	contentPanel := panelStyle
	if w := m.viewContentWidth(); w > 0 {
		contentPanel = contentPanel.Width(w)
	}
	b.WriteString(contentPanel.Render(content))
	b.WriteString("\n")

	if m.errorText != "" {
		b.WriteString(alertStyle.Render(errorStyle.Render(m.errorText)))
		b.WriteString("\n")
	}

	helpPanel := helpPanelStyle
	if w := m.viewContentWidth(); w > 0 {
		helpPanel = helpPanel.Width(w)
	}
	b.WriteString(helpPanel.Render(m.help.View(m.keys)))

	return pageStyle.Render(b.String()) + "\n"
}

func (m *privacyWizardModel) pagesHeader() string {
	labels := []string{"1 Warning", "2 Select", "3 Confirm"}
	current := int(m.machine.Page())
	parts := make([]string, len(labels))
	for i, label := range labels {
		if i == current {
			parts[i] = pageTabCurrentStyle.Render(label)
		} else {
			parts[i] = pageTabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m *privacyWizardModel) viewWarning() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Change project privacy"))
	b.WriteString("\n\n")

	if m.openErr != nil {
		b.WriteString(errorStyle.Render(m.openErr.Error()))
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("The project tree could not be loaded. Press esc to close."))
		return b.String()
	}

	vs := m.machine.ViewState()
	b.WriteString("Making a component public gives read access to anyone.\n")
	b.WriteString("Making it private removes that access, but copies already\n")
	b.WriteString("made while public cannot be retracted.\n\n")

	if len(vs.Nodes) > 0 {
		root := vs.Nodes[0]
		b.WriteString(root.Title)
		b.WriteString("  ")
		b.WriteString(visibilityBadge(domain.VisibilityFor(root.Proposed)))
		b.WriteString("\n\n")
	}

	if vs.HasChildren {
		b.WriteString(hintStyle.Render("Press enter to choose which components change."))
	} else {
		b.WriteString(hintStyle.Render("No components. Space toggles the project; enter applies."))
	}
	return b.String()
}

func (m *privacyWizardModel) viewSelect() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Select visibility per component"))
	b.WriteString("\n\n")
	b.WriteString(m.nodeTable.View())
	b.WriteString("\n")

	pending := m.pendingCount()
	summary := "no pending changes"
	if pending == 1 {
		summary = "1 pending change"
	} else if pending > 1 {
		summary = fmt.Sprintf("%d pending changes", pending)
	}
	b.WriteString(hintStyle.Render(summary + " · space toggle · a all public · x all private · enter review"))
	return b.String()
}

func (m *privacyWizardModel) viewConfirm() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Review visibility changes"))
	b.WriteString("\n\n")
	b.WriteString(m.diffView.View())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("enter confirm · esc back · ctrl+c cancel"))
	return b.String()
}

func (m *privacyWizardModel) diffContent() string {
	vs := m.machine.ViewState()
	if vs.Diff == nil || vs.Diff.Empty() {
		return hintStyle.Render("No visibility changes proposed. Confirm keeps everything as is.")
	}
	var b strings.Builder
	if len(vs.Diff.ChangedToPublic) > 0 {
		b.WriteString(warnStyle.Render("Will become public:"))
		b.WriteString("\n")
		for _, title := range vs.Diff.ChangedToPublic {
			b.WriteString("  + " + title + "\n")
		}
	}
	if len(vs.Diff.ChangedToPrivate) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(okStyle.Render("Will become private:"))
		b.WriteString("\n")
		for _, title := range vs.Diff.ChangedToPrivate {
			b.WriteString("  - " + title + "\n")
		}
	}
	return b.String()
}

func (m *privacyWizardModel) pendingCount() int {
	count := 0
	for _, n := range m.machine.ViewState().Nodes {
		if n.Proposed != n.Original {
			count++
		}
	}
	return count
}

func nodeTableColumns(width int) []table.Column {
	titleWidth := 34
	if width > 0 {
		titleWidth = width - 26
		if titleWidth < 20 {
			titleWidth = 20
		}
	}
	return []table.Column{
		{Title: "Component", Width: titleWidth},
		{Title: "Now", Width: 9},
		{Title: "Proposed", Width: 11},
	}
}

func (m *privacyWizardModel) syncRows() {
	if m.rowsStale {
		m.rebuildRows()
	}
}

func (m *privacyWizardModel) rebuildRows() {
	cols := nodeTableColumns(m.viewContentWidth())
	titleWidth := cols[0].Width

	vs := m.machine.ViewState()
	rows := make([]table.Row, 0, len(vs.Nodes))
	for _, n := range vs.Nodes {
		title := strings.Repeat("  ", n.Depth) + n.Title
		title = ansi.Truncate(title, titleWidth, "…")
		proposed := string(domain.VisibilityFor(n.Proposed))
		if n.Proposed != n.Original {
			proposed += " *"
		}
		rows = append(rows, table.Row{title, string(domain.VisibilityFor(n.Original)), proposed})
	}

	cursor := m.nodeTable.Cursor()
	m.nodeTable.SetColumns(cols)
	m.nodeTable.SetRows(rows)
	if cursor >= 0 && cursor < len(rows) {
		m.nodeTable.SetCursor(cursor)
	}
	m.rowsStale = false
}

func (m *privacyWizardModel) viewContentWidth() int {
	if m.width <= 0 {
		return 0
	}
	contentWidth := m.width - 8
	if contentWidth < 52 {
		return 0
	}
	return contentWidth
}

func (m *privacyWizardModel) resize() {
	m.rebuildRows()
	if w := m.viewContentWidth(); w > 0 {
		m.nodeTable.SetWidth(w - 4)
		m.diffView.Width = w - 4
	}
	if m.height > 0 {
		h := m.height - 14
		if h < 6 {
			h = 6
		}
		if h > 20 {
			h = 20
		}
		m.nodeTable.SetHeight(h)
		m.diffView.Height = h
	}
}
