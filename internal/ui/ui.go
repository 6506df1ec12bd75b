package ui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/ratings"
	"github.com/mkbell/discme/internal/services"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	AlbumListView ViewState = iota
	TrackListView
)

// Model represents the TUI application state.
type Model struct {
	ctx           context.Context
	view          ViewState
	catalog       services.Catalog
	engine        *ratings.Engine
	user          *models.User
	width         int
	height        int
	albumList     list.Model
	albums        []models.SavedAlbum
	trackList     list.Model
	selectedAlbum *models.Album
	tracks        []models.Track
	ratings       map[string]int
	session       *models.RatingSession
	err           error
	help          help.Model
	keys          keyMap
}

// keyMap defines the key bindings for the TUI.
type keyMap struct {
	up    key.Binding
	down  key.Binding
	enter key.Binding
	back  key.Binding
	rate  key.Binding
	quit  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		rate: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9", "0"),
			key.WithHelp("1-9,0", "rate (0 = 10)"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.back, k.rate, k.quit},
	}
}

// albumItem wraps [models.SavedAlbum] to implement list.Item.
type albumItem struct {
	saved models.SavedAlbum
}

func (i albumItem) FilterValue() string { return i.saved.Album.Name }
func (i albumItem) Title() string       { return i.saved.Album.Name }
func (i albumItem) Description() string {
	return fmt.Sprintf("%s • %d tracks", i.saved.Album.ArtistName, i.saved.Album.TotalTracks)
}

// trackItem wraps [models.Track] plus its current rating to implement list.Item.
type trackItem struct {
	track  models.Track
	rating int
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string {
	return fmt.Sprintf("%d. %s", i.track.TrackNumber, i.track.Name)
}
func (i trackItem) Description() string {
	if i.rating > 0 {
		return styles.ok.Render(fmt.Sprintf("rated %d/10", i.rating))
	}
	return styles.help.Render("unrated")
}

type albumsFetchedMsg struct {
	albums []models.SavedAlbum
	err    error
}

type tracksFetchedMsg struct {
	album   *models.Album
	tracks  []models.Track
	ratings map[string]int
	session *models.RatingSession
	err     error
}

type ratingSavedMsg struct {
	trackID string
	value   int
	session *models.RatingSession
	err     error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, catalog services.Catalog, engine *ratings.Engine, user *models.User) *Model {
	return &Model{
		ctx:     ctx,
		view:    AlbumListView,
		catalog: catalog,
		engine:  engine,
		user:    user,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init initializes the TUI by fetching the user's saved albums.
func (m *Model) Init() tea.Cmd {
	return m.fetchAlbums()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.albumList.Width() == 0 {
			m.albumList.SetSize(msg.Width-4, msg.Height-8)
		}
		if m.trackList.Width() == 0 {
			m.trackList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case AlbumListView:
			return m.handleAlbumListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		}

	case albumsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.albums = msg.albums
		items := make([]list.Item, len(msg.albums))
		for i, saved := range msg.albums {
			items[i] = albumItem{saved: saved}
		}
		m.albumList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.albumList.Title = "Saved Albums"
		m.albumList.SetSize(m.width-4, m.height-8)
		return m, nil

	case tracksFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = AlbumListView
			return m, nil
		}
		m.selectedAlbum = msg.album
		m.tracks = msg.tracks
		m.ratings = msg.ratings
		m.session = msg.session
		m.trackList = list.New(m.trackItems(), list.NewDefaultDelegate(), 0, 0)
		m.trackList.Title = m.trackListTitle()
		m.trackList.SetSize(m.width-4, m.height-8)
		m.view = TrackListView
		return m, nil

	case ratingSavedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.ratings[msg.trackID] = msg.value
		m.session = msg.session
		index := m.trackList.Index()
		m.trackList.SetItems(m.trackItems())
		m.trackList.Select(index)
		m.trackList.Title = m.trackListTitle()
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case AlbumListView:
		return m.renderAlbumList()
	case TrackListView:
		return m.renderTrackList()
	default:
		return ""
	}
}

func (m *Model) trackItems() []list.Item {
	items := make([]list.Item, len(m.tracks))
	for i, track := range m.tracks {
		items[i] = trackItem{track: track, rating: m.ratings[track.ID]}
	}
	return items
}

func (m *Model) trackListTitle() string {
	if m.session == nil || m.selectedAlbum == nil {
		return "Tracks"
	}

	title := fmt.Sprintf("%s — %d/%d rated (%.1f%%)",
		m.selectedAlbum.Name, m.session.RatedTracks(), m.session.TotalTracks(),
		m.session.CompletionPercentage())
	if avg := m.session.AverageRating(); avg != nil {
		title += fmt.Sprintf(", avg %.2f", *avg)
	}
	if m.session.IsCompleted() {
		title += " ✓"
	}
	return title
}

func (m *Model) handleAlbumListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		selected := m.albumList.SelectedItem()
		if selected != nil {
			if item, ok := selected.(albumItem); ok {
				return m, m.fetchTracks(item.saved.Album.ID)
			}
		}
	}

	var cmd tea.Cmd
	m.albumList, cmd = m.albumList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keyString := msg.String()

	switch keyString {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = AlbumListView
		m.err = nil
		return m, nil
	}

	// digits rate the selected track; 0 means 10
	if len(keyString) == 1 && keyString[0] >= '0' && keyString[0] <= '9' {
		value, _ := strconv.Atoi(keyString)
		if value == 0 {
			value = 10
		}
		if selected, ok := m.trackList.SelectedItem().(trackItem); ok {
			return m, m.rate(selected.track.ID, value)
		}
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case AlbumListView:
		m.albumList, cmd = m.albumList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchAlbums() tea.Cmd {
	return func() tea.Msg {
		albums, err := m.catalog.SavedAlbums(m.ctx, m.user.AccessToken())
		return albumsFetchedMsg{albums: albums, err: err}
	}
}

func (m *Model) fetchTracks(albumID string) tea.Cmd {
	return func() tea.Msg {
		album, err := m.catalog.Album(m.ctx, m.user.AccessToken(), albumID)
		if err != nil {
			return tracksFetchedMsg{err: err}
		}

		tracks, err := m.catalog.AlbumTracks(m.ctx, m.user.AccessToken(), albumID)
		if err != nil {
			return tracksFetchedMsg{err: err}
		}

		session, err := m.engine.GetOrCreateSession(m.user.ID(), albumID, album.TotalTracks)
		if err != nil {
			return tracksFetchedMsg{err: err}
		}

		byTrack, err := m.engine.AlbumRatings(m.user.ID(), albumID)
		if err != nil {
			return tracksFetchedMsg{err: err}
		}

		return tracksFetchedMsg{album: album, tracks: tracks, ratings: byTrack, session: session}
	}
}

func (m *Model) rate(trackID string, value int) tea.Cmd {
	albumID := m.selectedAlbum.ID
	userID := m.user.ID()

	return func() tea.Msg {
		_, session, err := m.engine.RecordRating(ratings.RatingInput{
			UserID:  userID,
			TrackID: trackID,
			AlbumID: albumID,
			Rating:  value,
		})
		return ratingSavedMsg{trackID: trackID, value: value, session: session, err: err}
	}
}

func (m *Model) renderAlbumList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.albumList.View(), helpView)
}

func (m *Model) renderTrackList() string {
	helpKeys := []key.Binding{m.keys.rate, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
}
