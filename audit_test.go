package claimpdf

import (
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/pipeline"
)

func resolvedImage() imageres.Resolved {
	return imageres.Resolved{Data: []byte{1, 2, 3}, MIMEType: "image/png", Source: imageres.KindInline, Size: 3}
}

// ---------------------------------------------------------------------------
// TestAuditReport_Finish - Verdict Selection
// ---------------------------------------------------------------------------

func TestAuditReport_Finish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		build   func(a *AuditReport)
		err     error
		want    Verdict
		wantErr bool
	}{
		{
			name: "clean render",
			build: func(a *AuditReport) {
				a.addImage(ImageLogo, resolvedImage())
				a.markPlaceholders(nil)
				a.markEmbeds([]pipeline.Embed{{Class: ImageLogo, Inline: true}})
			},
			want: VerdictOK,
		},
		{
			name: "resolved images but none embedded",
			build: func(a *AuditReport) {
				a.addImage(ImageLogo, resolvedImage())
				a.markPlaceholders(nil)
				a.markEmbeds(nil)
			},
			want: VerdictKeyMismatch,
		},
		{
			name: "nothing resolved and nothing embedded",
			build: func(a *AuditReport) {
				a.addImage(ImageIllustration, imageres.Resolved{Source: imageres.KindEmpty})
				a.markPlaceholders(nil)
				a.markEmbeds(nil)
			},
			want: VerdictOK,
		},
		{
			name: "placeholders outrank failure",
			build: func(a *AuditReport) {
				a.markPlaceholders([]string{"{{.Fields.vin}}"})
			},
			err:     errors.New("unevaluated"),
			want:    VerdictUnevaluatedTemplate,
			wantErr: true,
		},
		{
			name:    "failure",
			build:   func(a *AuditReport) {},
			err:     errors.New("backend down"),
			want:    VerdictFailed,
			wantErr: true,
		},
		{
			name: "unchecked markup never reports a mismatch",
			build: func(a *AuditReport) {
				a.addImage(ImageLogo, resolvedImage())
			},
			want: VerdictOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newAudit("CLM-20260114-0001", RendererPrimary, fixedNow)
			tt.build(a)
			a.finish(tt.err)

			if a.Verdict != tt.want {
				t.Errorf("Verdict = %s, want %s", a.Verdict, tt.want)
			}
			if (a.Error != "") != tt.wantErr {
				t.Errorf("Error = %q, wantErr %v", a.Error, tt.wantErr)
			}
		})
	}
}

func TestAuditReport_MarkEmbeds(t *testing.T) {
	t.Parallel()

	a := newAudit("id", RendererPrimary, fixedNow)
	a.addImage(ImageLogo, resolvedImage())
	a.addImage(ImageIllustration, resolvedImage())
	a.addImage(SignatureClass(0), imageres.Resolved{Source: imageres.KindEmpty})

	a.markEmbeds([]pipeline.Embed{
		{Class: ImageLogo, Inline: true},
		{Class: ImageIllustration, Inline: true, Empty: true},
		{Class: SignatureClass(0), Inline: true},
	})

	if !a.Embedded(ImageLogo) {
		t.Error("logo should be embedded")
	}
	if a.Embedded(ImageIllustration) {
		t.Error("empty src should not count as embedded")
	}
	if len(a.Anomalies) != 2 {
		t.Errorf("Anomalies = %v, want resolved-not-embedded and embedded-not-resolved", a.Anomalies)
	}
	if a.Embedded("unknown") {
		t.Error("unknown class reported embedded")
	}
}

func TestSignatureClass(t *testing.T) {
	t.Parallel()

	for i, want := range []string{"signature1", "signature2", "signature3"} {
		if got := SignatureClass(i); got != want {
			t.Errorf("SignatureClass(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestAuditReport_MarshalIndent(t *testing.T) {
	t.Parallel()

	a := newAudit("CLM-20260114-0002", RendererLegacy, fixedNow)
	a.addImage(ImageIllustration, imageres.Resolved{Source: imageres.KindStorageID, Err: errors.New("not found")})
	a.anomaly("parts table full")
	a.finish(nil)

	data, err := a.MarshalIndent()
	if err != nil {
		t.Fatalf("MarshalIndent() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("artifact is not JSON: %v", err)
	}
	for _, key := range []string{"documentId", "renderer", "images", "verdict", "anomalies", "createdAt"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("artifact missing %q", key)
		}
	}
}

func TestAuditReport_Log(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
	}{
		{name: "ok logs info", wantLevel: zapcore.InfoLevel},
		{name: "failure logs warn", err: errors.New("boom"), wantLevel: zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			a := newAudit("id", RendererPrimary, fixedNow)
			a.finish(tt.err)
			a.log(zap.New(core))

			entries := logs.FilterMessage("render audit").All()
			if len(entries) != 1 {
				t.Fatalf("got %d audit entries, want 1", len(entries))
			}
			if entries[0].Level != tt.wantLevel {
				t.Errorf("level = %s, want %s", entries[0].Level, tt.wantLevel)
			}
			if entries[0].ContextMap()["verdict"] != string(a.Verdict) {
				t.Errorf("verdict field = %v", entries[0].ContextMap()["verdict"])
			}
		})
	}
}
