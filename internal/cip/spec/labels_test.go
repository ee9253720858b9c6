package spec

import (
	"testing"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
)

func TestLabelService(t *testing.T) {
	tests := []struct {
		name     string
		service  protocol.ServiceCode
		target   Target
		response bool
		want     string
		known    bool
	}{
		{"generic get", ServiceGetAttributeSingle, Target{Class: ClassIdentity}, false, "Get_Attribute_Single", true},
		{"forward close", 0x4E, Target{Class: ClassConnectionManager}, false, "Forward_Close", true},
		{"file 0x4E", 0x4E, Target{Class: ClassFile}, false, "Initiate_Partial_Write", true},
		{"modbus 0x4E", 0x4E, Target{Class: ClassModbus}, true, "Modbus_Read_Holding_Registers_Response", true},
		{"unconnected send", 0x52, Target{Class: ClassConnectionManager}, false, "Unconnected_Send", true},
		{"fragmented read by symbol", 0x52, Target{Symbolic: true}, false, "Read_Tag_Fragmented", true},
		{"0x52 elsewhere", 0x52, Target{Class: ClassIdentity}, false, "Unknown(0x52)", false},
		{"forward open wrong class", ServiceForwardOpen, Target{Class: ClassAssembly}, false, "Unknown(0x54)", false},
		{"template read", ServiceReadTag, Target{Class: ClassTemplate}, false, "Template_Read", true},
		{"unregistered", 0x7F, Target{}, false, "Unknown(0x7F)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := LabelService(tt.service, tt.target, tt.response)
			if got != tt.want || known != tt.known {
				t.Errorf("LabelService() = %q, %v, want %q, %v", got, known, tt.want, tt.known)
			}
		})
	}
}

func TestTargetOf(t *testing.T) {
	path, err := codec.NewPath().Class(0x6B).Instance(0x1234).Attribute(2).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	got := TargetOf(path)
	if got != (Target{Class: 0x6B, Instance: 0x1234}) {
		t.Errorf("TargetOf() = %+v", got)
	}

	tag, err := codec.NewPath().Tag("Program:Main.Counts[2]").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !TargetOf(tag).Symbolic {
		t.Errorf("TargetOf(%s).Symbolic = false, want true", tag)
	}
}

func TestIsUnknownServiceLabel(t *testing.T) {
	if !IsUnknownServiceLabel(ServiceName(0x7E)) {
		t.Errorf("ServiceName(0x7E) = %q, want Unknown label", ServiceName(0x7E))
	}
	if IsUnknownServiceLabel("Forward_Open") {
		t.Errorf("Forward_Open reported as unknown")
	}
}
