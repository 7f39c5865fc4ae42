package wire

import (
	"bytes"
	"testing"
)

func TestSessionBodyRoundTrips(t *testing.T) {
	init := SessionInitStartBody{OfferedSessionID: 1234, SessionIdentifier: 0xDEADBEEF}
	got, err := DecodeSessionInitStart(init.Encode())
	if err != nil || got != init {
		t.Fatalf("init round trip: got=%+v err=%v", got, err)
	}

	idChange := SessionIDChangeBody{OldID: 1, NewID: 2}
	gotChange, err := DecodeSessionIDChange(idChange.Encode())
	if err != nil || gotChange != idChange {
		t.Fatalf("id-change round trip: got=%+v err=%v", gotChange, err)
	}

	confirm := SessionIDConfirmBody{NewID: 2, SessionIdentifier: 99}
	gotConfirm, err := DecodeSessionIDConfirm(confirm.Encode())
	if err != nil || gotConfirm != confirm {
		t.Fatalf("id-confirm round trip: got=%+v err=%v", gotConfirm, err)
	}

	reply := SessionInitReplyBody{NewID: 2}
	gotReply, err := DecodeSessionInitReply(reply.Encode())
	if err != nil || gotReply != reply {
		t.Fatalf("init-reply round trip: got=%+v err=%v", gotReply, err)
	}
}

func TestErrorBodyRoundTrip(t *testing.T) {
	in := ErrorBody{Code: 4, Message: "message timeout"}
	got, err := DecodeError(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Code != in.Code || got.Message != in.Message {
		t.Fatalf("mismatch: got=%+v want=%+v", got, in)
	}
}

func TestDynamicBodyRoundTrip(t *testing.T) {
	in := DynamicBody{Payload: []byte("hello world, this is a stream message")}
	got, err := DecodeDynamic(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.Payload, in.Payload) {
		t.Fatalf("payload mismatch: got=%q want=%q", got.Payload, in.Payload)
	}
}

func TestMultiBodyRoundTrips(t *testing.T) {
	init := MultiInitBody{MultiblockID: 777, TotalSize: 1048576}
	gotInit, err := DecodeMultiInit(init.Encode())
	if err != nil || gotInit != init {
		t.Fatalf("multi-init round trip: got=%+v err=%v", gotInit, err)
	}

	reply := MultiInitReplyBody{MultiblockID: 777, Status: MultiInitStatusOK}
	gotReply, err := DecodeMultiInitReply(reply.Encode())
	if err != nil || gotReply != reply {
		t.Fatalf("multi-init-reply round trip: got=%+v err=%v", gotReply, err)
	}

	static := MultiStaticBody{MultiblockID: 777, TotalPartNumber: 1049, PartID: 3, Payload: []byte("chunk")}
	gotStatic, err := DecodeMultiStatic(static.Encode())
	if err != nil {
		t.Fatalf("multi-static decode: %v", err)
	}
	if gotStatic.MultiblockID != static.MultiblockID || gotStatic.PartID != static.PartID ||
		!bytes.Equal(gotStatic.Payload, static.Payload) {
		t.Fatalf("multi-static mismatch: got=%+v want=%+v", gotStatic, static)
	}

	id := MultiblockIDBody{MultiblockID: 777}
	gotID, err := DecodeMultiblockID(id.Encode())
	if err != nil || gotID != id {
		t.Fatalf("multiblock id round trip: got=%+v err=%v", gotID, err)
	}
}

func TestEncodeFrameWithBodyTryParse(t *testing.T) {
	body := MultiInitBody{MultiblockID: 42, TotalSize: 2000}.Encode()
	h := Header{
		Version:   MessageVersion,
		Type:      TypeMultiBlock,
		SubType:   MultiInit,
		SessionID: 5,
		MessageID: 1,
		Flags:     FlagReplyExpected,
	}
	frame := EncodeFrame(h, body)

	r := NewRing()
	r.Write(frame)
	gotHeader, gotBody, err := r.TryParse(0)
	if err != nil {
		t.Fatalf("try parse: %v", err)
	}
	if !gotHeader.HasFlag(FlagReplyExpected) {
		t.Fatalf("expected reply-expected flag set")
	}
	decoded, err := DecodeMultiInit(gotBody)
	if err != nil {
		t.Fatalf("decode multi-init: %v", err)
	}
	if decoded.MultiblockID != 42 || decoded.TotalSize != 2000 {
		t.Fatalf("decoded mismatch: %+v", decoded)
	}
}
