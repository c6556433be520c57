package graphics

import "math"

// Pose is position and orientation in space. Orientation is a unit
// quaternion in w, x, y, z order.
type Pose struct {
	Pos  [3]float64
	Quat [4]float64
}

// Identity is a pose at origin without rotation.
var Identity = Pose{Quat: [4]float64{1, 0, 0, 0}}

// Nav moves a pose with smoothed velocity. Move sets the desired
// velocity, the actual one approaches it by the smoothing factor every
// step.
type Nav struct {
	Pose
	vel    [3]float64
	move   [3]float64
	smooth float64
}

// NewNav returns nav at the identity pose.
func NewNav() *Nav {
	return &Nav{Pose: Identity}
}

// Move sets desired velocity in units per step.
func (n *Nav) Move(x, y, z float64) {
	n.move = [3]float64{x, y, z}
}

// Halt stops the motion immediately.
func (n *Nav) Halt() {
	n.move = [3]float64{}
	n.vel = [3]float64{}
}

// Velocity returns current velocity.
func (n *Nav) Velocity() [3]float64 {
	return n.vel
}

// Smooth sets the smoothing factor in [0, 1). Zero means no smoothing.
func (n *Nav) Smooth(v float64) {
	n.smooth = math.Max(0, math.Min(v, 0.9999))
}

// Step advances the pose by step velocity units.
func (n *Nav) Step(step float64) {
	for i := range n.vel {
		n.vel[i] = n.vel[i]*n.smooth + n.move[i]*(1-n.smooth)
		n.Pos[i] += n.vel[i] * step
	}
}

// animate is the nav step before the animate hook: smoothing is derived
// from the real frame time and the step is scaled by the target rate.
func (n *Nav) animate(dt, fps float64) {
	n.Smooth(math.Pow(0.0001, dt))
	n.Step(dt * fps)
}
