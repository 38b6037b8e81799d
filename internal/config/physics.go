package config

// =============================================================================
// BIKE PHYSICS CONFIGURATION
// =============================================================================

// Vec is a plain 2D offset used in configuration (frame-local, facing right).
type Vec struct {
	X, Y float64
}

// PhysicsConfig holds the bike and rider parameters fed to the physics step.
// Offsets are expressed in the frame's local space with the bike facing right.
type PhysicsConfig struct {
	Gravity float64 // Downward acceleration (positive number)

	FrameMass   float64
	FrameWidth  float64
	FrameHeight float64
	WheelMass   float64
	WheelRadius float64
	HeadSize    float64 // Radius of the head collision circle
	NeckLength  float64

	RearWheelAnchor  Vec
	FrontWheelAnchor Vec
	Elbow            Vec
	Shoulder         Vec
	LowerBody        Vec
	Knee             Vec

	SuspensionSpring float64
	SuspensionDamp   float64

	MaxEngine              float64
	EngineDamp             float64
	BrakeFactor            float64
	EngineRPMMin           float64
	EngineRPMMax           float64
	WheelRollResistance    float64
	WheelRollResistanceMax float64
	WheelRollVelocityMax   float64

	AttitudeTorque   float64
	AttitudeDefactor float64
	AttitudeCooldown float64 // Seconds per unit of pull before attitude can fire again

	ContactStiffness float64 // Penalty spring per unit of contact depth
	ContactDamping   float64
	DefaultGrip      float64

	SleepEps    float64 // Linear velocity below which a body counts as still
	SleepFrames int     // Still steps before bodies are disabled
}

// DefaultPhysics returns the default bike physics configuration.
func DefaultPhysics() PhysicsConfig {
	return PhysicsConfig{
		Gravity: 9.81,

		FrameMass:   40,
		FrameWidth:  1.6,
		FrameHeight: 1.0,
		WheelMass:   5,
		WheelRadius: 0.35,
		HeadSize:    0.18,
		NeckLength:  0.26,

		RearWheelAnchor:  Vec{X: -0.70, Y: -0.40},
		FrontWheelAnchor: Vec{X: 0.70, Y: -0.40},
		Elbow:            Vec{X: 0.35, Y: 0.55},
		Shoulder:         Vec{X: 0.05, Y: 0.95},
		LowerBody:        Vec{X: -0.15, Y: 0.35},
		Knee:             Vec{X: 0.25, Y: 0.20},

		SuspensionSpring: 2500,
		SuspensionDamp:   15000,

		MaxEngine:              60,
		EngineDamp:             1.0,
		BrakeFactor:            11,
		EngineRPMMin:           800,
		EngineRPMMax:           12000,
		WheelRollResistance:    0.5,
		WheelRollResistanceMax: 5,
		WheelRollVelocityMax:   200,

		AttitudeTorque:   400,
		AttitudeDefactor: 0.85,
		AttitudeCooldown: 0.6,

		ContactStiffness: 8000,
		ContactDamping:   300,
		DefaultGrip:      20,

		SleepEps:    0.02,
		SleepFrames: 20,
	}
}

// PhysicsFromEnv returns physics configuration with environment variable overrides.
func PhysicsFromEnv() PhysicsConfig {
	cfg := DefaultPhysics()

	if g := getEnvFloat("PHYS_GRAVITY", 0); g > 0 {
		cfg.Gravity = g
	}
	if e := getEnvFloat("PHYS_MAX_ENGINE", 0); e > 0 {
		cfg.MaxEngine = e
	}

	return cfg
}
