package audio

import "sync"

// AudioSessionManager maps a guild to the transport streaming into its voice
// connection.
type AudioSessionManager struct {
	sessions map[string]*Connection
	mutex    sync.RWMutex
}

func NewAudioSessionManager() *AudioSessionManager {
	return &AudioSessionManager{
		sessions: make(map[string]*Connection),
	}
}

func (m *AudioSessionManager) Get(guildID string) (*Connection, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	conn, ok := m.sessions[guildID]
	return conn, ok
}

func (m *AudioSessionManager) Set(guildID string, conn *Connection) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[guildID] = conn
}

// Delete removes the guild's transport and returns it, if any.
func (m *AudioSessionManager) Delete(guildID string) (*Connection, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	conn, ok := m.sessions[guildID]
	delete(m.sessions, guildID)
	return conn, ok
}
