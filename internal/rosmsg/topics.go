package rosmsg

// TopicTF is the pose-tracking channel fed by the motion capture system.
const TopicTF = "/tf"

// WorldFrame is the parent frame of recorded poses and setpoints.
const WorldFrame = "world"

// Command kinds: the last segment of a per-vehicle command topic.
const (
	KindCmdPosition      = "cmd_position"
	KindCmdFullState     = "cmd_full_state"
	KindCmdVelocityWorld = "cmd_velocity_world"
)

// CommandTopic returns the topic a vehicle receives commands of kind on.
func CommandTopic(vehicle, kind string) string {
	return "/" + vehicle + "/" + kind
}
