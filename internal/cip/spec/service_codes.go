package spec

import "github.com/tturner/cipstack/internal/cip/protocol"

// CIP service codes.
const (
	ServiceGetAttributeAll      protocol.ServiceCode = 0x01
	ServiceSetAttributeAll      protocol.ServiceCode = 0x02
	ServiceGetAttributeList     protocol.ServiceCode = 0x03
	ServiceSetAttributeList     protocol.ServiceCode = 0x04
	ServiceReset                protocol.ServiceCode = 0x05
	ServiceStart                protocol.ServiceCode = 0x06
	ServiceStop                 protocol.ServiceCode = 0x07
	ServiceCreate               protocol.ServiceCode = 0x08
	ServiceDelete               protocol.ServiceCode = 0x09
	ServiceMultipleService      protocol.ServiceCode = protocol.ServiceMultipleService
	ServiceApplyAttributes      protocol.ServiceCode = 0x0D
	ServiceGetAttributeSingle   protocol.ServiceCode = 0x0E
	ServiceSetAttributeSingle   protocol.ServiceCode = 0x10
	ServiceFindNextObjectInst   protocol.ServiceCode = 0x11
	ServiceRestore              protocol.ServiceCode = 0x15
	ServiceSave                 protocol.ServiceCode = 0x16
	ServiceNoOp                 protocol.ServiceCode = 0x17
	ServiceGetMember            protocol.ServiceCode = 0x18
	ServiceSetMember            protocol.ServiceCode = 0x19
	ServiceInsertMember         protocol.ServiceCode = 0x1A
	ServiceRemoveMember         protocol.ServiceCode = 0x1B
	ServiceGroupSync            protocol.ServiceCode = 0x1C
	ServiceExecutePCCC          protocol.ServiceCode = 0x4B
	ServiceReadTag              protocol.ServiceCode = 0x4C
	ServiceWriteTag             protocol.ServiceCode = 0x4D
	ServiceForwardClose         protocol.ServiceCode = 0x4E
	ServiceUnconnectedSend      protocol.ServiceCode = protocol.ServiceUnconnectedSend
	ServiceReadTagFragmented    protocol.ServiceCode = 0x52
	ServiceWriteTagFragmented   protocol.ServiceCode = 0x53
	ServiceForwardOpen          protocol.ServiceCode = 0x54
	ServiceGetConnectionData    protocol.ServiceCode = 0x56
	ServiceSearchConnectionData protocol.ServiceCode = 0x57
	ServiceGetConnectionOwner   protocol.ServiceCode = 0x5A
	ServiceLargeForwardOpen     protocol.ServiceCode = 0x5B
)

// Modbus object services.
const (
	ServiceModbusReadDiscreteInputs   protocol.ServiceCode = 0x4B
	ServiceModbusReadCoils            protocol.ServiceCode = 0x4C
	ServiceModbusReadInputRegisters   protocol.ServiceCode = 0x4D
	ServiceModbusReadHoldingRegisters protocol.ServiceCode = 0x4E
	ServiceModbusWriteCoils           protocol.ServiceCode = 0x4F
	ServiceModbusWriteHoldingRegs     protocol.ServiceCode = 0x50
	ServiceModbusPassthrough          protocol.ServiceCode = 0x51
)

// CIP object class codes.
const (
	ClassIdentity          uint32 = 0x01
	ClassMessageRouter     uint32 = 0x02
	ClassAssembly          uint32 = 0x04
	ClassConnection        uint32 = 0x05
	ClassConnectionManager uint32 = 0x06
	ClassFile              uint32 = 0x37
	ClassModbus            uint32 = 0x44
	ClassPCCC              uint32 = 0x67
	ClassSymbol            uint32 = 0x6B
	ClassTemplate          uint32 = 0x6C
	ClassPort              uint32 = 0xF4
	ClassTCPIP             uint32 = 0xF5
	ClassEthernetLink      uint32 = 0xF6
)
