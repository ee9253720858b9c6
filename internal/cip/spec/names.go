package spec

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/protocol"
)

var serviceNames = map[protocol.ServiceCode]string{
	0x01: "Get_Attribute_All",
	0x02: "Set_Attribute_All",
	0x03: "Get_Attribute_List",
	0x04: "Set_Attribute_List",
	0x05: "Reset",
	0x06: "Start",
	0x07: "Stop",
	0x08: "Create",
	0x09: "Delete",
	0x0A: "Multiple_Service_Packet",
	0x0D: "Apply_Attributes",
	0x0E: "Get_Attribute_Single",
	0x10: "Set_Attribute_Single",
	0x11: "Find_Next_Object_Instance",
	0x15: "Restore",
	0x16: "Save",
	0x17: "No_Op",
	0x18: "Get_Member",
	0x19: "Set_Member",
	0x1A: "Insert_Member",
	0x1B: "Remove_Member",
	0x1C: "Group_Sync",
	0x4B: "Execute_PCCC",
	0x4C: "Read_Tag",
	0x4D: "Write_Tag",
	0x4E: "Read_Modify_Write",
	0x52: "Unconnected_Send",
	0x53: "Write_Tag_Fragmented",
	0x54: "Forward_Open",
	0x56: "Get_Connection_Data",
	0x57: "Search_Connection_Data",
	0x5A: "Get_Connection_Owner",
	0x5B: "Large_Forward_Open",
}

var classNames = map[uint32]string{
	ClassIdentity:          "Identity",
	ClassMessageRouter:     "Message_Router",
	ClassAssembly:          "Assembly",
	ClassConnection:        "Connection",
	ClassConnectionManager: "Connection_Manager",
	ClassFile:              "File",
	ClassModbus:            "Modbus",
	ClassPCCC:              "PCCC",
	ClassSymbol:            "Symbol",
	ClassTemplate:          "Template",
	ClassPort:              "Port",
	ClassTCPIP:             "TCP_IP_Interface",
	ClassEthernetLink:      "Ethernet_Link",
}

// ServiceName returns a default display name for a CIP service code.
func ServiceName(code protocol.ServiceCode) string {
	if name, ok := serviceNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", uint8(code))
}

// IsKnownService returns true when a service code is recognized.
func IsKnownService(code protocol.ServiceCode) bool {
	_, ok := serviceNames[code]
	return ok
}

// ClassName returns a display name for an object class.
func ClassName(class uint32) string {
	if name, ok := classNames[class]; ok {
		return name
	}
	return fmt.Sprintf("Class(0x%02X)", class)
}

// IsKnownClass returns true when an object class is recognized.
func IsKnownClass(class uint32) bool {
	_, ok := classNames[class]
	return ok
}
