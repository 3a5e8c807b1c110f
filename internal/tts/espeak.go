package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
mirror_espeak_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) > 0 ? 0 : -1;
}

static int
mirror_espeak_say(const char *text, const char *lang, int rate)
{
	if (!text || !lang)
	{ return -1; }

	espeak_VOICE specs = { .languages = lang };
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }
	espeak_SetParameter(espeakRATE, rate, 0);

	if (espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -3; }
	espeak_Synchronize();

	return 0;
}

static void
mirror_espeak_close(void)
{
	espeak_Terminate();
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Espeak synthesises speech through libespeak-ng. The library is not
// reentrant, so calls are serialised.
type Espeak struct {
	voice string
	rate  int

	mu     sync.Mutex
	inited bool
}

func NewEspeak(voice string, rate int) *Espeak {
	if voice == "" {
		voice = "en"
	}
	if rate <= 0 {
		rate = 170
	}
	return &Espeak{voice: voice, rate: rate}
}

// Speak plays text and blocks until playback finishes.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inited {
		if rc := C.mirror_espeak_init(); rc != 0 {
			return fmt.Errorf("espeak init failed: %d", int(rc))
		}
		e.inited = true
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(e.voice)
	defer C.free(unsafe.Pointer(cvoice))

	if rc := C.mirror_espeak_say(ctext, cvoice, C.int(e.rate)); rc != 0 {
		return fmt.Errorf("espeak say failed: %d", int(rc))
	}
	return nil
}

func (e *Espeak) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited {
		C.mirror_espeak_close()
		e.inited = false
	}
}
