// Package form holds the modal shell and the certificate editor shown in it.
package form

import "sync"

// Modal is a single dismissible dialog. Opening it replaces any previous
// body.
type Modal struct {
	mu    sync.Mutex
	title string
	body  any
	open  bool
}

// ModalView is a snapshot for rendering.
type ModalView struct {
	Title string
	Body  any
	Open  bool
}

func NewModal() *Modal {
	return &Modal{}
}

// Show opens the modal with title and body.
func (m *Modal) Show(title string, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.title = title
	m.body = body
	m.open = true
}

// Close hides the modal and drops its body.
func (m *Modal) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.title = ""
	m.body = nil
	m.open = false
}

// HandleKey closes an open modal on Escape and reports whether it did.
func (m *Modal) HandleKey(key string) bool {
	if key != "Escape" || !m.IsOpen() {
		return false
	}
	m.Close()
	return true
}

// BackdropClick closes the modal.
func (m *Modal) BackdropClick() {
	m.Close()
}

func (m *Modal) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Modal) View() ModalView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ModalView{Title: m.title, Body: m.body, Open: m.open}
}
