package vc

import (
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"risubot/audio"
)

var ErrNoSession = errors.New("no voice session for guild")

// VoiceManager owns the voice connection and audio transport of every guild.
type VoiceManager struct {
	mu          sync.RWMutex
	connections map[string]*discordgo.VoiceConnection // guildID → VC

	sessions *audio.AudioSessionManager
	open     audio.Opener
	log      zerolog.Logger
}

func NewVoiceManager(open audio.Opener, logger zerolog.Logger) *VoiceManager {
	return &VoiceManager{
		connections: make(map[string]*discordgo.VoiceConnection),
		sessions:    audio.NewAudioSessionManager(),
		open:        open,
		log:         logger,
	}
}

// Join connects to channelID, or moves the existing connection there.
func (vm *VoiceManager) Join(s *discordgo.Session, guildID, channelID string) (*discordgo.VoiceConnection, error) {
	if vc, ok := vm.Get(guildID); ok {
		if current, _ := vm.ChannelID(guildID); current == channelID {
			return vc, nil
		}
		if err := vc.ChangeChannel(channelID, false, true); err != nil {
			return nil, err
		}
		vm.log.Info().Str("guild", guildID).Str("channel", channelID).Msg("moved voice connection")
		return vc, nil
	}

	vc, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}

	vm.mu.Lock()
	vm.connections[guildID] = vc
	vm.mu.Unlock()
	vm.sessions.Set(guildID, audio.NewConnection(vc, vm.open, vm.log.With().Str("guild", guildID).Logger()))

	vm.log.Info().Str("guild", guildID).Str("channel", channelID).Msg("joined voice channel")
	return vc, nil
}

// Leave disconnects and removes the VC.
func (vm *VoiceManager) Leave(guildID string) error {
	if conn, ok := vm.sessions.Delete(guildID); ok {
		conn.Stop()
	}

	vm.mu.Lock()
	vc, ok := vm.connections[guildID]
	delete(vm.connections, guildID)
	vm.mu.Unlock()
	if !ok {
		return nil // nothing to disconnect
	}

	return vc.Disconnect()
}

// Forget drops the guild's connection after Discord already closed it.
func (vm *VoiceManager) Forget(guildID string) {
	if conn, ok := vm.sessions.Delete(guildID); ok {
		conn.Stop()
	}
	vm.mu.Lock()
	delete(vm.connections, guildID)
	vm.mu.Unlock()
}

// LeaveAll disconnects every guild, used on shutdown.
func (vm *VoiceManager) LeaveAll() {
	vm.mu.RLock()
	guilds := make([]string, 0, len(vm.connections))
	for guildID := range vm.connections {
		guilds = append(guilds, guildID)
	}
	vm.mu.RUnlock()

	for _, guildID := range guilds {
		if err := vm.Leave(guildID); err != nil {
			vm.log.Warn().Err(err).Str("guild", guildID).Msg("disconnect failed")
		}
	}
}

// Get returns the VC for the guild, if it exists.
func (vm *VoiceManager) Get(guildID string) (*discordgo.VoiceConnection, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	vc, ok := vm.connections[guildID]
	return vc, ok
}

// ChannelID returns the voice channel the bot sits in for the guild.
func (vm *VoiceManager) ChannelID(guildID string) (string, bool) {
	vc, ok := vm.Get(guildID)
	if !ok {
		return "", false
	}
	vc.RLock()
	defer vc.RUnlock()
	return vc.ChannelID, true
}

func (vm *VoiceManager) Connected(guildID string) bool {
	vc, ok := vm.Get(guildID)
	if !ok {
		return false
	}
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

func (vm *VoiceManager) Playing(guildID string) bool {
	conn, ok := vm.sessions.Get(guildID)
	return ok && conn.IsPlaying()
}

func (vm *VoiceManager) Paused(guildID string) bool {
	conn, ok := vm.sessions.Get(guildID)
	return ok && conn.IsPaused()
}

func (vm *VoiceManager) Play(guildID, url string, done func(error)) error {
	conn, ok := vm.sessions.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	return conn.Play(url, done)
}

func (vm *VoiceManager) Stop(guildID string) bool {
	conn, ok := vm.sessions.Get(guildID)
	return ok && conn.Stop()
}

func (vm *VoiceManager) Pause(guildID string) bool {
	conn, ok := vm.sessions.Get(guildID)
	return ok && conn.Pause()
}

func (vm *VoiceManager) Resume(guildID string) bool {
	conn, ok := vm.sessions.Get(guildID)
	return ok && conn.Resume()
}

// Disconnect releases the guild's voice session.
func (vm *VoiceManager) Disconnect(guildID string) error {
	return vm.Leave(guildID)
}
