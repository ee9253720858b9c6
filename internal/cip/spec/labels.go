package spec

import (
	"fmt"
	"strings"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
)

// Target is the class and instance a request path addresses.
type Target struct {
	Class    uint32
	Instance uint32
	Symbolic bool
}

// TargetOf returns the last class and instance addressed by path.
func TargetOf(path codec.EPath) Target {
	var t Target
	for _, seg := range path.Segments {
		switch s := seg.(type) {
		case codec.Logical:
			switch s.Type {
			case codec.ClassID:
				t.Class, t.Instance = s.Value, 0
			case codec.InstanceID:
				t.Instance = s.Value
			}
		case codec.Data:
			if s.Type == codec.DataANSISymbol {
				t.Symbolic = true
			}
		case codec.Symbolic:
			t.Symbolic = true
		}
	}
	return t
}

// LabelService returns a contextual label for a service code.
// Context is required because object-specific services share codes.
func LabelService(service protocol.ServiceCode, target Target, isResponse bool) (string, bool) {
	name := ServiceName(service)
	unknown := fmt.Sprintf("Unknown(0x%02X)", uint8(service))

	switch service {
	case 0x4B:
		switch target.Class {
		case ClassFile:
			name = "Initiate_Upload"
		case ClassModbus:
			name = "Modbus_Read_Discrete_Inputs"
		case 0, ClassPCCC:
		default:
			name = unknown
		}
	case 0x4C:
		switch target.Class {
		case ClassFile:
			name = "Initiate_Download"
		case ClassModbus:
			name = "Modbus_Read_Coils"
		case ClassTemplate:
			name = "Template_Read"
		}
	case 0x4D:
		switch target.Class {
		case ClassFile:
			name = "Initiate_Partial_Read"
		case ClassModbus:
			name = "Modbus_Read_Input_Registers"
		}
	case 0x4E:
		switch target.Class {
		case ClassConnectionManager:
			name = "Forward_Close"
		case ClassFile:
			name = "Initiate_Partial_Write"
		case ClassModbus:
			name = "Modbus_Read_Holding_Registers"
		}
	case 0x4F, 0x50, 0x51:
		labels := map[protocol.ServiceCode][2]string{
			0x4F: {"Upload_Transfer", "Modbus_Write_Coils"},
			0x50: {"Download_Transfer", "Modbus_Write_Holding_Registers"},
			0x51: {"Clear_File", "Modbus_Passthrough"},
		}
		switch target.Class {
		case ClassFile:
			name = labels[service][0]
		case ClassModbus:
			name = labels[service][1]
		default:
			name = unknown
		}
	case 0x52:
		switch {
		case target.Class == ClassConnectionManager:
			name = "Unconnected_Send"
		case target.Class == ClassSymbol || target.Class == ClassTemplate || target.Symbolic:
			name = "Read_Tag_Fragmented"
		default:
			name = unknown
		}
	case 0x54, 0x5B:
		if target.Class != ClassConnectionManager {
			name = unknown
		}
	}

	ok := name != unknown
	if isResponse {
		name += "_Response"
	}
	return name, ok
}

// IsUnknownServiceLabel reports if the label is an Unknown placeholder.
func IsUnknownServiceLabel(label string) bool {
	return strings.HasPrefix(label, "Unknown(")
}
