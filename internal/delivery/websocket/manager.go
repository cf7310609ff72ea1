package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Manager управляет WebSocket-соединениями для уведомлений о прогрессе
// обработки книг. Клиенты подписываются на книги по их ID.
type Manager struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	mu         sync.RWMutex
}

// Client представляет WebSocket-клиента
type Client struct {
	ID      uuid.UUID
	Conn    *websocket.Conn
	Manager *Manager
	Send    chan []byte
	Books   map[string]bool // Книги, на которые подписан клиент
	booksMu sync.RWMutex
}

// Message представляет сообщение для отправки через WebSocket
type Message struct {
	Type    string      `json:"type"`
	BookID  string      `json:"book_id"`
	Payload interface{} `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене следует настроить проверку на разрешенные источники
	},
}

// NewManager создает новый экземпляр Manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message),
	}
}

// Start запускает Manager в отдельной горутине
func (m *Manager) Start() {
	go m.run()
}

// run обрабатывает все операции Manager
func (m *Manager) run() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			m.mu.Unlock()
			log.Printf("WebSocket: клиент %s подключен", client.ID)

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client.ID]; ok {
				close(client.Send)
				delete(m.clients, client.ID)
				log.Printf("WebSocket: клиент %s отключен", client.ID)
			}
			m.mu.Unlock()

		case message := <-m.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("WebSocket: ошибка маршалинга сообщения: %v", err)
				continue
			}

			// Отправляем сообщение всем клиентам, подписанным на книгу
			m.mu.RLock()
			for _, client := range m.clients {
				if !client.isSubscribed(message.BookID) {
					continue
				}
				select {
				case client.Send <- data:
				default:
					close(client.Send)
					delete(m.clients, client.ID)
				}
			}
			m.mu.RUnlock()
		}
	}
}

// NotifyProgress отправляет уведомление о прогрессе обработки книги.
// Реализует интерфейс Notifier менеджера задач.
func (m *Manager) NotifyProgress(bookID string, status string, progress int, message string) {
	m.broadcast <- Message{
		Type:   "book_progress",
		BookID: bookID,
		Payload: map[string]interface{}{
			"status":   status,
			"progress": progress,
			"message":  message,
		},
	}
}

// Handler обрабатывает новые WebSocket-соединения. Клиент может сразу
// подписаться на книгу через query-параметр book_id.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket: ошибка апгрейда соединения: %v", err)
			return
		}

		client := &Client{
			ID:      uuid.New(),
			Conn:    conn,
			Manager: m,
			Send:    make(chan []byte, 256),
			Books:   make(map[string]bool),
		}
		if bookID := r.URL.Query().Get("book_id"); bookID != "" {
			client.Books[bookID] = true
		}

		m.register <- client

		go client.readPump()
		go client.writePump()
	})
}

func (c *Client) isSubscribed(bookID string) bool {
	c.booksMu.RLock()
	defer c.booksMu.RUnlock()
	return c.Books[bookID]
}

// readPump обрабатывает входящие сообщения от клиента: команды подписки и
// отписки от книг
func (c *Client) readPump() {
	defer func() {
		c.Manager.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket: ошибка чтения: %v", err)
			}
			break
		}

		var cmd struct {
			Action string `json:"action"`
			BookID string `json:"book_id"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Printf("WebSocket: ошибка разбора команды: %v", err)
			continue
		}

		c.booksMu.Lock()
		switch cmd.Action {
		case "subscribe":
			c.Books[cmd.BookID] = true
		case "unsubscribe":
			delete(c.Books, cmd.BookID)
		}
		c.booksMu.Unlock()
	}
}

// writePump отправляет сообщения клиенту и поддерживает соединение пингами
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Досылаем накопившиеся сообщения одним фреймом
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
