/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package loopback

import (
	"fmt"

	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/media"
)

// Incoming delivers a new call from the remote peer. The call rings and the
// orchestrator is told about it.
func (a *Adapter) Incoming(from, displayName string, video bool) (*calling.Call, error) {
	if !a.IsRegistered() {
		return nil, ErrNotRegistered
	}

	call := calling.NewCall(a.orch)
	d, err := a.newDialog(call, true)
	if err != nil {
		return nil, err
	}
	call.SetSession(d.session)
	call.MarkIncoming()
	call.SetCaller(from, displayName)
	call.SetReceivingVideo(video)
	call.SetState(calling.CallStateRinging)

	a.orch.GotIncomingCall(call)
	return call, nil
}

// Trying is the provisional response to an outgoing call.
func (a *Adapter) Trying(session int) error {
	d, err := a.dialog(session)
	if err != nil {
		return err
	}
	d.call.SetState(calling.CallStateDialing)
	return nil
}

// Ringing means the remote side is alerting.
func (a *Adapter) Ringing(session int) error {
	d, err := a.dialog(session)
	if err != nil {
		return err
	}
	d.call.SetState(calling.CallStateRinging)
	return nil
}

// Connected means the dialog is established. Incoming calls report
// DidAnswerCall before the state change.
func (a *Adapter) Connected(session int) error {
	d, err := a.dialog(session)
	if err != nil {
		return err
	}

	a.mu.Lock()
	d.talked = true
	a.mu.Unlock()

	if d.incoming {
		a.orch.DidAnswerCall(d.call)
	}
	d.call.SetExistsAudio(true)
	d.call.SetState(calling.CallStateTalking)
	return nil
}

// Closed is a remote BYE or CANCEL. An incoming call that never got to
// talking is reported missed.
func (a *Adapter) Closed(session int) error {
	d, ok := a.removeDialog(session)
	if !ok {
		return calling.NewActionFailed(CodeNoDialog, "Call/Transaction Does Not Exist")
	}

	a.mu.RLock()
	talked := d.talked
	a.mu.RUnlock()

	if d.incoming && !talked {
		d.call.MarkMissed()
		a.orch.GotMissedCall(d.call)
	}
	d.call.MarkHungUpRemotely()
	d.call.SetState(calling.CallStateTerminated)
	return nil
}

// Failure is a final error response from the remote side.
func (a *Adapter) Failure(session int, code int, reason string) error {
	d, ok := a.removeDialog(session)
	if !ok {
		return calling.NewActionFailed(CodeNoDialog, "Call/Transaction Does Not Exist")
	}
	a.logger.Printf("loopback: dialog %s failed: %d %s", d.id, code, reason)
	d.call.MarkHungUpRemotely()
	d.call.SetState(calling.CallStateTerminated)
	return nil
}

// RemoteHold means the peer put the call on hold.
func (a *Adapter) RemoteHold(session int) error {
	d, err := a.dialog(session)
	if err != nil {
		return err
	}
	d.call.SetState(calling.CallStateHolding)
	return nil
}

// RemoteUnhold means the peer resumed the call.
func (a *Adapter) RemoteUnhold(session int) error {
	d, err := a.dialog(session)
	if err != nil {
		return err
	}
	d.call.SetState(calling.CallStateTalking)
	return nil
}

// RemoteVideo means the peer started or stopped sending video.
func (a *Adapter) RemoteVideo(session int, receiving bool) error {
	d, err := a.dialog(session)
	if err != nil {
		return err
	}
	d.call.SetReceivingVideo(receiving)
	return nil
}

// Offer is a session description sent by the peer on an existing dialog.
// When the settings select audio codecs, an offer carrying none of them is
// refused with 488. With no selection any known audio codec is accepted, and
// only an offer without one is refused. Otherwise the dialog's engine
// answers it.
func (a *Adapter) Offer(session int, offer string) (string, error) {
	d, err := a.dialog(session)
	if err != nil {
		return "", err
	}
	if d.engine == nil {
		return "", ErrMediaDisabled
	}

	codecs, err := media.NegotiatedCodecs(offer)
	if err != nil {
		return "", calling.NewActionFailed(CodeNotAcceptable, err.Error())
	}
	if !acceptable(codecs, a.Settings()) {
		return "", calling.NewActionFailed(CodeNotAcceptable, "Not Acceptable Here")
	}

	if err := d.engine.SetRemoteOffer(offer); err != nil {
		return "", fmt.Errorf("dialog %s: %w", d.id, err)
	}
	answer, err := d.engine.CreateAnswer()
	if err != nil {
		return "", fmt.Errorf("dialog %s: %w", d.id, err)
	}
	return answer, nil
}

// acceptable reports whether an offered audio codec is selected. Without a
// selection any known audio codec will do.
func acceptable(offered []calling.Codec, settings calling.Settings) bool {
	for _, codec := range offered {
		if codec.Type != calling.CodecTypeAudio {
			continue
		}
		if len(settings.AudioCodecs) == 0 || settings.Contains(codec) {
			return true
		}
	}
	return false
}

// LocalOffer creates the dialog's session description for the peer.
func (a *Adapter) LocalOffer(session int) (string, error) {
	d, err := a.dialog(session)
	if err != nil {
		return "", err
	}
	if d.engine == nil {
		return "", ErrMediaDisabled
	}
	return d.engine.CreateOffer()
}

// Answer applies the peer's answer to LocalOffer.
func (a *Adapter) Answer(session int, answer string) error {
	d, err := a.dialog(session)
	if err != nil {
		return err
	}
	if d.engine == nil {
		return ErrMediaDisabled
	}
	return d.engine.SetRemoteAnswer(answer)
}
