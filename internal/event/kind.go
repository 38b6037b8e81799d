// Package event is the scene event model: every state change a level script
// or the game rules make is an Event that can be applied to a scene and
// reverted from it. Replays store the events with their times and seek
// through them by applying or reverting.
package event

import "moto-sim/internal/wire"

// Kind enum for event classification. Values are part of the replay format.
type Kind uint8

const (
	KindPlayerDies Kind = iota
	KindPlayerEntersZone
	KindPlayerLeavesZone
	KindPlayerTouchesEntity
	KindEntityDestroyed
	KindClearMessages
	KindPlaceInGameArrow
	KindPlaceScreenArrow
	KindHideArrow
	KindMessage
	KindMoveBlock
	KindSetBlockPos
	KindSetGravity
	KindSetPlayerPosition
	KindSetEntityPos
	KindSetBlockCenter
	KindSetBlockRotation
	KindSetDynamicBlockRotation
	KindSetDynamicBlockTranslation
	KindSetDynamicBlockNone
	KindCameraZoom
	KindCameraMove
	KindPenaltyTime
	KindSetDynamicBlockSelfRotation
	KindCameraRotate
	KindAddForceToPlayer
	KindPlayerWins

	numKinds
)

// Policy says how an event kind behaves during replay playback.
type Policy uint8

const (
	// Revertible kinds are applied and reverted as the cursor moves.
	Revertible Policy = iota
	// SuppressedInReplay kinds drive the bike directly. Playback restores the
	// bike from snapshots, so these are skipped (their applied flag still
	// follows the cursor).
	SuppressedInReplay
)

type kindSpec struct {
	name   string
	policy Policy
	decode func(r *wire.Reader) Payload
}

var kinds = [numKinds]kindSpec{
	KindPlayerDies:                  {"PlayerDies", Revertible, decodePlayerDies},
	KindPlayerEntersZone:            {"PlayerEntersZone", Revertible, decodePlayerEntersZone},
	KindPlayerLeavesZone:            {"PlayerLeavesZone", Revertible, decodePlayerLeavesZone},
	KindPlayerTouchesEntity:         {"PlayerTouchesEntity", Revertible, decodePlayerTouchesEntity},
	KindEntityDestroyed:             {"EntityDestroyed", Revertible, decodeEntityDestroyed},
	KindClearMessages:               {"ClearMessages", Revertible, decodeClearMessages},
	KindPlaceInGameArrow:            {"PlaceInGameArrow", Revertible, decodePlaceInGameArrow},
	KindPlaceScreenArrow:            {"PlaceScreenArrow", Revertible, decodePlaceScreenArrow},
	KindHideArrow:                   {"HideArrow", Revertible, decodeHideArrow},
	KindMessage:                     {"Message", Revertible, decodeMessage},
	KindMoveBlock:                   {"MoveBlock", Revertible, decodeMoveBlock},
	KindSetBlockPos:                 {"SetBlockPos", Revertible, decodeSetBlockPos},
	KindSetGravity:                  {"SetGravity", Revertible, decodeSetGravity},
	KindSetPlayerPosition:           {"SetPlayerPosition", SuppressedInReplay, decodeSetPlayerPosition},
	KindSetEntityPos:                {"SetEntityPos", Revertible, decodeSetEntityPos},
	KindSetBlockCenter:              {"SetBlockCenter", Revertible, decodeSetBlockCenter},
	KindSetBlockRotation:            {"SetBlockRotation", Revertible, decodeSetBlockRotation},
	KindSetDynamicBlockRotation:     {"SetDynamicBlockRotation", Revertible, decodeSetDynamicBlockRotation},
	KindSetDynamicBlockTranslation:  {"SetDynamicBlockTranslation", Revertible, decodeSetDynamicBlockTranslation},
	KindSetDynamicBlockNone:         {"SetDynamicBlockNone", Revertible, decodeSetDynamicBlockNone},
	KindCameraZoom:                  {"CameraZoom", Revertible, decodeCameraZoom},
	KindCameraMove:                  {"CameraMove", Revertible, decodeCameraMove},
	KindPenaltyTime:                 {"PenaltyTime", Revertible, decodePenaltyTime},
	KindSetDynamicBlockSelfRotation: {"SetDynamicBlockSelfRotation", Revertible, decodeSetDynamicBlockSelfRotation},
	KindCameraRotate:                {"CameraRotate", Revertible, decodeCameraRotate},
	KindAddForceToPlayer:            {"AddForceToPlayer", SuppressedInReplay, decodeAddForceToPlayer},
	KindPlayerWins:                  {"PlayerWins", Revertible, decodePlayerWins},
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k < numKinds }

// String returns the kind name
func (k Kind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return kinds[k].name
}

// Policy returns the replay policy of k.
func (k Kind) Policy() Policy {
	if !k.Valid() {
		return Revertible
	}
	return kinds[k].policy
}

// ParseKind maps a kind name back to its value.
func ParseKind(name string) (Kind, bool) {
	for k := Kind(0); k < numKinds; k++ {
		if kinds[k].name == name {
			return k, true
		}
	}
	return 0, false
}

// Observer receives apply/revert outcomes. The metrics layer implements it.
type Observer interface {
	EventApplied(k Kind)
	EventReverted(k Kind)
	EventFailed(k Kind)
}

