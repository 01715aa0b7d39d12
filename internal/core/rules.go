package core

import "time"

// Rules are the tunable parameters of a room.
type Rules struct {
	RoomName         string
	MaxPlayers       int
	MinPlayers       int
	MaxRounds        int
	MaxQueuedIntents int
	ValidateTimeout  time.Duration
}

// DefaultRules returns the rules used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		RoomName:        "arena",
		MaxPlayers:      8,
		MinPlayers:      2,
		MaxRounds:       3,
		ValidateTimeout: 2 * time.Second,
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.RoomName == "" {
		r.RoomName = d.RoomName
	}
	if r.MaxPlayers <= 0 {
		r.MaxPlayers = d.MaxPlayers
	}
	if r.MinPlayers <= 0 {
		r.MinPlayers = d.MinPlayers
	}
	if r.MaxRounds <= 0 {
		r.MaxRounds = d.MaxRounds
	}
	if r.ValidateTimeout <= 0 {
		r.ValidateTimeout = d.ValidateTimeout
	}
	return r
}

// Fixed game constants.
const (
	startingHealth   = 100
	baseDamage       = 10
	accuracyBonus    = 5
	maxAccuracy      = 2
	killReward       = 25
	roundWinReward   = 100
	rouletteReward   = 50
	shopRouletteCost = 25
	miningPerSecond  = 1
	maxChatRunes     = 256
	maxRoomNameRunes = 32
)

// Item is an entry in the shop catalog.
type Item struct {
	Name  string
	Price int
}

var catalog = map[uint32]Item{
	1: {Name: "shield", Price: 40},
	2: {Name: "scope", Price: 60},
	3: {Name: "boots", Price: 30},
}

// catalogIDs is the catalog's key set in ascending order.
var catalogIDs = []uint32{1, 2, 3}
