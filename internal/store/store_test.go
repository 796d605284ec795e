package store

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateGetListDelete(t *testing.T) {
	s := newTestStore(t)

	r1, err := s.Create(CollDocuments, "", "han.docx", map[string]string{"origin": "upload"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r1.ID == "" {
		t.Fatal("Create returned empty id")
	}

	got, err := s.Get(CollDocuments, r1.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "han.docx" {
		t.Errorf("Name = %q, want han.docx", got.Name)
	}
	var data map[string]string
	if err := json.Unmarshal(got.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["origin"] != "upload" {
		t.Errorf("data = %v", data)
	}

	time.Sleep(time.Millisecond)
	r2, err := s.Create(CollDocuments, "", "second.txt", nil)
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	list, err := s.List(CollDocuments)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != r1.ID || list[1].ID != r2.ID {
		t.Errorf("List order wrong: %+v", list)
	}

	if err := s.Delete(CollDocuments, r1.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(CollDocuments, r1.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: %v, want ErrNotFound", err)
	}
}

func TestUpdateMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Update(CollDocuments, "nope", map[string]int{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: %v, want ErrNotFound", err)
	}
	if err := s.Delete(CollDocuments, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing: %v, want ErrNotFound", err)
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create(CollRooms, "", "의국", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Get(CollDocuments, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-collection Get: %v, want ErrNotFound", err)
	}
}

func TestFileBlobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create(CollDocuments, "", "han.txt", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.SaveFile(CollDocuments, r.ID, "han.txt", strings.NewReader("시호 처방")); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	rc, err := s.OpenFile(CollDocuments, r.ID)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "시호 처방" {
		t.Errorf("blob = %q", data)
	}

	got, _ := s.Get(CollDocuments, r.ID)
	if url := FileURL(got); url != "/files/documents/"+r.ID+"/han.txt" {
		t.Errorf("FileURL = %q", url)
	}
}

func TestIndexBlobLifecycle(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create(CollDocuments, "", "han.txt", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// No index yet: absent, not an error.
	rc, err := s.OpenIndexBlob(r.ID)
	if err != nil || rc != nil {
		t.Fatalf("OpenIndexBlob before save: rc=%v err=%v", rc, err)
	}

	if err := s.SaveIndexBlob(r.ID, strings.NewReader(`{"시호":[0]}`)); err != nil {
		t.Fatalf("SaveIndexBlob: %v", err)
	}
	got, _ := s.Get(CollDocuments, r.ID)
	if !got.IsIndexed {
		t.Error("IsIndexed not set")
	}

	rc, err = s.OpenIndexBlob(r.ID)
	if err != nil || rc == nil {
		t.Fatalf("OpenIndexBlob: rc=%v err=%v", rc, err)
	}
	blob, _ := io.ReadAll(rc)
	rc.Close()
	if string(blob) != `{"시호":[0]}` {
		t.Errorf("blob = %q", blob)
	}

	if err := s.DropIndexBlob(r.ID); err != nil {
		t.Fatalf("DropIndexBlob: %v", err)
	}
	got, _ = s.Get(CollDocuments, r.ID)
	if got.IsIndexed {
		t.Error("IsIndexed still set after drop")
	}

	if err := s.SaveIndexBlob("missing", strings.NewReader("{}")); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveIndexBlob missing doc: %v, want ErrNotFound", err)
	}
}

func TestSearchLogs(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendSearchLog("시호/백호", []string{"han.docx"}, 2); err != nil {
		t.Fatalf("AppendSearchLog: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := s.AppendSearchLog("부자", []string{"dok.txt"}, 1); err != nil {
		t.Fatalf("AppendSearchLog: %v", err)
	}

	logs, err := s.SearchLogs()
	if err != nil {
		t.Fatalf("SearchLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs", len(logs))
	}
	if logs[0].Query != "부자" {
		t.Errorf("logs[0].Query = %q, want newest first", logs[0].Query)
	}
	if logs[1].Query != "시호/백호" || logs[1].TotalCount != 2 {
		t.Errorf("log = %+v", logs[1])
	}
	if len(logs[1].UsedFiles) != 1 || logs[1].UsedFiles[0] != "han.docx" {
		t.Errorf("used files = %v", logs[1].UsedFiles)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := newTestStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	r, err := s.Create(CollRooms, "", "의국", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case c := <-ch:
		if c.Op != "create" || c.Collection != CollRooms || c.ID != r.ID {
			t.Errorf("change = %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	cancel()
	// Double cancel is safe; writes after cancel don't reach the channel.
	cancel()
	if err := s.Delete(CollRooms, r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
}

func TestTouchAdvancesLastModified(t *testing.T) {
	s := newTestStore(t)
	before, err := s.LastModified()
	if err != nil {
		t.Fatalf("LastModified: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := s.Create(CollDocuments, "", "x", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	after, err := s.LastModified()
	if err != nil {
		t.Fatalf("LastModified: %v", err)
	}
	if after <= before {
		t.Errorf("LastModified did not advance: %d -> %d", before, after)
	}
}
