package protocol_test

import (
	"errors"
	"testing"

	"github.com/omochice/proximity-relay/pkg/protocol"
)

func TestDecodeLoginRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    protocol.LoginRequest
		wantErr bool
	}{
		{
			name: "password login with defaults",
			data: `{"username":"alice","password":"secret"}`,
			want: protocol.LoginRequest{Username: "alice", Password: "secret"},
		},
		{
			name: "session resume",
			data: `{"username":"alice","password":"tok","session":true}`,
			want: protocol.LoginRequest{Username: "alice", Password: "tok", Session: true},
		},
		{
			name: "register",
			data: `{"username":"bob","password":"pw","register":true}`,
			want: protocol.LoginRequest{Username: "bob", Password: "pw", Register: true},
		},
		{
			name:    "missing password",
			data:    `{"username":"alice"}`,
			wantErr: true,
		},
		{
			name:    "missing username",
			data:    `{"password":"secret"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			data:    `{"username":`,
			wantErr: true,
		},
		{
			name:    "keys are case sensitive",
			data:    `{"USERNAME":"alice","PASSWORD":"secret"}`,
			wantErr: true,
		},
		{
			name:    "null flag",
			data:    `{"username":"alice","password":"secret","session":null}`,
			wantErr: true,
		},
		{
			name:    "null password",
			data:    `{"username":"alice","password":null}`,
			wantErr: true,
		},
		{
			name:    "flag of wrong type",
			data:    `{"username":"alice","password":"secret","register":"yes"}`,
			wantErr: true,
		},
		{
			name: "unknown fields ignored",
			data: `{"username":"alice","password":"secret","client":"cli"}`,
			want: protocol.LoginRequest{Username: "alice", Password: "secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.DecodeLoginRequest([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeLoginRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("DecodeLoginRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeLoginRequest_MissingFieldIsTyped(t *testing.T) {
	_, err := protocol.DecodeLoginRequest([]byte(`{"username":"alice"}`))
	if !errors.Is(err, protocol.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestLoginResponse_Encode(t *testing.T) {
	tests := []struct {
		name string
		resp protocol.LoginResponse
		want string
	}{
		{
			name: "failure omits optional fields",
			resp: protocol.LoginResponse{Success: false},
			want: `{"success":false}`,
		},
		{
			name: "success carries username and session",
			resp: protocol.LoginResponse{Success: true, Username: "alice", Session: "abc"},
			want: `{"success":true,"username":"alice","session":"abc"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.resp.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Encode() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := protocol.DecodeCommand([]byte(`{"commandId":7,"type":"frequency","payload":42}`))
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if cmd.ID != 7 {
		t.Errorf("ID = %d, want 7", cmd.ID)
	}
	if cmd.Type != protocol.CommandFrequency {
		t.Errorf("Type = %v, want frequency", cmd.Type)
	}
	if got := cmd.Payload.GetNumberValue(); got != 42 {
		t.Errorf("payload = %v, want 42", got)
	}
}

func TestDecodeCommand_MissingPayloadIsNull(t *testing.T) {
	cmd, err := protocol.DecodeCommand([]byte(`{"commandId":1,"type":"account"}`))
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if cmd.Payload == nil || cmd.Payload.AsInterface() != nil {
		t.Errorf("payload = %v, want null", cmd.Payload)
	}
	if string(cmd.Raw) != "null" {
		t.Errorf("raw payload = %s, want null", cmd.Raw)
	}
}

func TestDecodeCommand_KeepsRawPayload(t *testing.T) {
	cmd, err := protocol.DecodeCommand([]byte(`{"commandId":1,"type":"frequency","payload": 12.0 }`))
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if string(cmd.Raw) != "12.0" {
		t.Errorf("raw payload = %s, want 12.0", cmd.Raw)
	}
}

func TestDecodeCommand_UnknownType(t *testing.T) {
	cmd, err := protocol.DecodeCommand([]byte(`{"commandId":1,"type":"dance"}`))
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if cmd.Type != protocol.CommandUnknown {
		t.Errorf("Type = %v, want unknown", cmd.Type)
	}
	if cmd.Name != "dance" {
		t.Errorf("Name = %q, want dance", cmd.Name)
	}
}

func TestDecodeCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"missing id", `{"type":"account"}`},
		{"missing type", `{"commandId":1}`},
		{"negative id", `{"commandId":-1,"type":"account"}`},
		{"fractional id", `{"commandId":1.5,"type":"account"}`},
		{"null type", `{"commandId":1,"type":null}`},
		{"case mismatch", `{"CommandId":1,"Type":"account"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := protocol.DecodeCommand([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestEncodeCommand(t *testing.T) {
	data, err := protocol.EncodeCommand(3, "position", map[string]float64{"latitude": 1})
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if cmd.ID != 3 || cmd.Type != protocol.CommandPosition {
		t.Errorf("decoded %+v", cmd)
	}

	data, err = protocol.EncodeCommand(4, "logout", nil)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if string(data) != `{"commandId":4,"type":"logout"}` {
		t.Errorf("EncodeCommand() = %s", data)
	}
}

func TestEncodeReply(t *testing.T) {
	data, err := protocol.EncodeReply(7, protocol.LoginResponse{Success: true, Username: "alice", Session: "s"})
	if err != nil {
		t.Fatalf("EncodeReply() error = %v", err)
	}
	want := `7 {"success":true,"username":"alice","session":"s"}`
	if string(data) != want {
		t.Errorf("EncodeReply() = %s, want %s", data, want)
	}

	id, body, err := protocol.SplitReply(data)
	if err != nil {
		t.Fatalf("SplitReply() error = %v", err)
	}
	if id != 7 {
		t.Errorf("SplitReply() id = %d, want 7", id)
	}
	if string(body) != want[2:] {
		t.Errorf("SplitReply() body = %s", body)
	}
}

func TestSplitReply_Errors(t *testing.T) {
	for _, data := range []string{`{"success":true}`, ` {}`, `x {}`} {
		if _, _, err := protocol.SplitReply([]byte(data)); err == nil {
			t.Errorf("SplitReply(%q) expected error", data)
		}
	}
}
