package spec

import "github.com/tturner/cipstack/internal/cip/protocol"

func registerDefaultServices(registry *Registry) {
	generic := func(code protocol.ServiceCode, minReq int) {
		registry.RegisterService(ServiceDef{
			Service:       code,
			Name:          ServiceName(code),
			MinRequestLen: minReq,
		})
	}
	generic(ServiceSetAttributeAll, 1)
	generic(ServiceGetAttributeList, 2)
	generic(ServiceSetAttributeList, 2)
	generic(ServiceSetAttributeSingle, 1)
	generic(ServiceSetMember, 1)
	generic(ServiceInsertMember, 1)
	generic(ServiceRemoveMember, 1)

	registry.RegisterService(ServiceDef{
		Class:          ClassMessageRouter,
		Service:        ServiceMultipleService,
		Name:           ServiceName(ServiceMultipleService),
		MinRequestLen:  4,
		MinResponseLen: 2,
		StrictRules:    []Rule{MultipleServiceRule{}},
	})

	// Connection Manager.
	registry.RegisterService(ServiceDef{
		Class:          ClassConnectionManager,
		Service:        ServiceForwardOpen,
		Name:           ServiceName(ServiceForwardOpen),
		MinRequestLen:  36,
		MinResponseLen: 26,
	})
	registry.RegisterService(ServiceDef{
		Class:          ClassConnectionManager,
		Service:        ServiceLargeForwardOpen,
		Name:           ServiceName(ServiceLargeForwardOpen),
		MinRequestLen:  40,
		MinResponseLen: 26,
	})
	registry.RegisterService(ServiceDef{
		Class:          ClassConnectionManager,
		Service:        ServiceForwardClose,
		Name:           "Forward_Close",
		MinRequestLen:  12,
		MinResponseLen: 10,
	})
	registry.RegisterService(ServiceDef{
		Class:         ClassConnectionManager,
		Service:       ServiceUnconnectedSend,
		Name:          "Unconnected_Send",
		MinRequestLen: 4,
		StrictRules:   []Rule{UnconnectedSendRule{}},
	})

	// Symbol Object (Logix tag services).
	registry.RegisterService(ServiceDef{Class: ClassSymbol, Service: ServiceReadTag, Name: "Read_Tag", MinRequestLen: 2, MinResponseLen: 2})
	registry.RegisterService(ServiceDef{Class: ClassSymbol, Service: ServiceWriteTag, Name: "Write_Tag", MinRequestLen: 4})
	registry.RegisterService(ServiceDef{Class: ClassSymbol, Service: ServiceReadTagFragmented, Name: "Read_Tag_Fragmented", MinRequestLen: 6, MinResponseLen: 2})
	registry.RegisterService(ServiceDef{Class: ClassSymbol, Service: ServiceWriteTagFragmented, Name: "Write_Tag_Fragmented", MinRequestLen: 8})
	registry.RegisterService(ServiceDef{Class: ClassTemplate, Service: ServiceReadTag, Name: "Template_Read", MinRequestLen: 6})

	// PCCC Object.
	registry.RegisterService(ServiceDef{
		Class:          ClassPCCC,
		Service:        ServiceExecutePCCC,
		Name:           ServiceName(ServiceExecutePCCC),
		MinRequestLen:  7,
		MinResponseLen: 7,
	})

	// Modbus Object: read services carry address and count, writes add data.
	for _, code := range []protocol.ServiceCode{
		ServiceModbusReadDiscreteInputs,
		ServiceModbusReadCoils,
		ServiceModbusReadInputRegisters,
		ServiceModbusReadHoldingRegisters,
	} {
		name, _ := LabelService(code, Target{Class: ClassModbus}, false)
		registry.RegisterService(ServiceDef{Class: ClassModbus, Service: code, Name: name, MinRequestLen: 4})
	}
	for _, code := range []protocol.ServiceCode{ServiceModbusWriteCoils, ServiceModbusWriteHoldingRegs} {
		name, _ := LabelService(code, Target{Class: ClassModbus}, false)
		registry.RegisterService(ServiceDef{Class: ClassModbus, Service: code, Name: name, MinRequestLen: 5})
	}
	registry.RegisterService(ServiceDef{Class: ClassModbus, Service: ServiceModbusPassthrough, Name: "Modbus_Passthrough", MinRequestLen: 1, MinResponseLen: 1})
}
