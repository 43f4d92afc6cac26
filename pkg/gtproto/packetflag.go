package gtproto

// PacketFlag is the 32-bit flag word carried in a TankHeader. Bit meanings
// are taken from the tank packet flag layout used by the game client.
type PacketFlag uint32

const (
	FlagExtended               PacketFlag = 1 << 0
	FlagNoCollision            PacketFlag = 1 << 1
	FlagIsFacingLeft           PacketFlag = 1 << 2
	FlagIsStanding             PacketFlag = 1 << 3
	FlagInBackground           PacketFlag = 1 << 4
	FlagSeedlingGrow           PacketFlag = 1 << 5
	FlagIsFirejumpTile         PacketFlag = 1 << 6
	FlagRotateLeft             PacketFlag = 1 << 7
	FlagTileUpdateOutOfRange   PacketFlag = 1 << 8
	FlagIsGhost                PacketFlag = 1 << 9
	FlagGhostBlockGrowable     PacketFlag = 1 << 10
	FlagGotPunched             PacketFlag = 1 << 11
	FlagShootingOrHeadingLeft  PacketFlag = 1 << 12
	FlagShootingUp             PacketFlag = 1 << 13
	FlagShootingDown           PacketFlag = 1 << 14
	FlagActionPunch            PacketFlag = 1 << 15
	FlagSwingParasol           PacketFlag = 1 << 16
	FlagPunchOrFlying          PacketFlag = 1 << 17
	FlagOnFireBlock            PacketFlag = 1 << 18
	FlagOnASlide               PacketFlag = 1 << 19
	FlagOnTrampoline           PacketFlag = 1 << 20
	FlagOnAcid                 PacketFlag = 1 << 21
	FlagOnSwimming             PacketFlag = 1 << 22
	FlagSuicide                PacketFlag = 1 << 23
	FlagHauntedShirtRespawning PacketFlag = 1 << 24
	FlagOnTrackingDrillRespawn PacketFlag = 1 << 25
	FlagOnGotPunchedOnJump     PacketFlag = 1 << 26
	FlagOnOperateAFK           PacketFlag = 1 << 27
	FlagRespawning             PacketFlag = 1 << 28
)

// Has reports whether all bits of mask are set.
func (f PacketFlag) Has(mask PacketFlag) bool { return f&mask == mask }

// Set returns f with mask's bits set.
func (f PacketFlag) Set(mask PacketFlag) PacketFlag { return f | mask }

// Clear returns f with mask's bits cleared.
func (f PacketFlag) Clear(mask PacketFlag) PacketFlag { return f &^ mask }

// None always reports false: the flag word never carries a meaningful
// "no flags" bit, it is simply the zero value.
func (f PacketFlag) None() bool { return false }
