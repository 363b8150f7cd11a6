package rosmsg

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// ROS 1 message definitions of the recorded types and their dependencies,
// comments removed. A .bag connection header carries the full definition
// text and an MD5 sum computed from it.
var definitions = map[string]string{
	"std_msgs/Header": `uint32 seq
time stamp
string frame_id`,
	"geometry_msgs/Vector3": `float64 x
float64 y
float64 z`,
	"geometry_msgs/Point": `float64 x
float64 y
float64 z`,
	"geometry_msgs/Quaternion": `float64 x
float64 y
float64 z
float64 w`,
	"geometry_msgs/Pose": `Point position
Quaternion orientation`,
	"geometry_msgs/Twist": `Vector3 linear
Vector3 angular`,
	"geometry_msgs/Transform": `Vector3 translation
Quaternion rotation`,
	"geometry_msgs/TransformStamped": `Header header
string child_frame_id
Transform transform`,
	TypeTFMessageROS1:  `geometry_msgs/TransformStamped[] transforms`,
	TypeTF2MessageROS1: `geometry_msgs/TransformStamped[] transforms`,
	TypePositionROS1: `Header header
float32 x
float32 y
float32 z
float32 yaw`,
	TypeFullStateROS1: `Header header
geometry_msgs/Pose pose
geometry_msgs/Twist twist
geometry_msgs/Vector3 acc`,
	TypeVelocityWorldROS1: `Header header
geometry_msgs/Vector3 vel
float32 yawRate`,
}

var builtinTypes = map[string]bool{
	"bool": true, "byte": true, "char": true,
	"int8": true, "uint8": true, "int16": true, "uint16": true,
	"int32": true, "uint32": true, "int64": true, "uint64": true,
	"float32": true, "float64": true,
	"string": true, "time": true, "duration": true,
}

type field struct {
	typ, name string
}

// fields splits a definition into its fields, each type resolved to its
// full name unless builtin.
func fields(typeName string) ([]field, error) {
	def, ok := definitions[typeName]
	if !ok {
		return nil, fmt.Errorf("no ROS 1 definition for %q", typeName)
	}
	pkg, _, _ := strings.Cut(typeName, "/")

	var out []field
	for _, line := range strings.Split(def, "\n") {
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s: malformed field %q", typeName, line)
		}
		typ, name := parts[0], parts[1]
		base, array, isArray := strings.Cut(typ, "[")
		if !builtinTypes[base] {
			switch {
			case base == "Header":
				base = "std_msgs/Header"
			case !strings.Contains(base, "/"):
				base = pkg + "/" + base
			}
			if isArray {
				typ = base + "[" + array
			} else {
				typ = base
			}
		}
		out = append(out, field{typ: typ, name: name})
	}
	return out, nil
}

func baseType(typ string) string {
	base, _, _ := strings.Cut(typ, "[")
	return base
}

// MD5Sum returns the ROS 1 MD5 sum of typeName: the hash of its definition
// with every non-builtin field type replaced by that type's own sum and
// array brackets dropped.
func MD5Sum(typeName string) (string, error) {
	fs, err := fields(typeName)
	if err != nil {
		return "", err
	}
	lines := make([]string, len(fs))
	for i, f := range fs {
		base := baseType(f.typ)
		if builtinTypes[base] {
			lines[i] = f.typ + " " + f.name
			continue
		}
		sum, err := MD5Sum(base)
		if err != nil {
			return "", err
		}
		lines[i] = sum + " " + f.name
	}
	h := md5.Sum([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h[:]), nil
}

// FullDefinition returns the message_definition text of a ROS 1 connection
// header: the definition of typeName followed by each dependency once.
func FullDefinition(typeName string) (string, error) {
	def, ok := definitions[typeName]
	if !ok {
		return "", fmt.Errorf("no ROS 1 definition for %q", typeName)
	}
	var deps []string
	seen := map[string]bool{typeName: true}
	var walk func(string) error
	walk = func(t string) error {
		fs, err := fields(t)
		if err != nil {
			return err
		}
		for _, f := range fs {
			base := baseType(f.typ)
			if builtinTypes[base] || seen[base] {
				continue
			}
			seen[base] = true
			deps = append(deps, base)
			if err := walk(base); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(typeName); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(def)
	b.WriteString("\n")
	for _, dep := range deps {
		b.WriteString(strings.Repeat("=", 80))
		b.WriteString("\nMSG: ")
		b.WriteString(dep)
		b.WriteString("\n")
		b.WriteString(definitions[dep])
		b.WriteString("\n")
	}
	return b.String(), nil
}
