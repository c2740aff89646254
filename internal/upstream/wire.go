// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package upstream

import (
	"fmt"
	"time"

	"github.com/okrugmedia/svodka/internal/models"
)

// envelope is the outer response shape: exactly one of Response or Error is
// set.
type envelope struct {
	Response rawMessage `json:"response"`
	Error    *wireError `json:"error"`
}

type rawMessage []byte

func (m *rawMessage) UnmarshalJSON(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}

type wireError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// WallPage is one page of a community wall.
type WallPage struct {
	Count int        `json:"count"`
	Items []WallPost `json:"items"`
}

// WallPost is a post as the upstream API serializes it.
type WallPost struct {
	ID          int64            `json:"id"`
	OwnerID     int64            `json:"owner_id"`
	FromID      int64            `json:"from_id"`
	Date        int64            `json:"date"`
	Text        string           `json:"text"`
	IsPinned    int              `json:"is_pinned"`
	MarkedAsAds int              `json:"marked_as_ads"`
	Attachments []wireAttachment `json:"attachments"`
	Views       counter          `json:"views"`
	Likes       counter          `json:"likes"`
	Reposts     counter          `json:"reposts"`
	Comments    counter          `json:"comments"`
	CopyHistory []WallPost       `json:"copy_history"`
}

type counter struct {
	Count int64 `json:"count"`
}

type wireAttachment struct {
	Type  string     `json:"type"`
	Photo *wireMedia `json:"photo"`
	Video *wireMedia `json:"video"`
	Audio *wireMedia `json:"audio"`
	Doc   *wireMedia `json:"doc"`
	Link  *wireLink  `json:"link"`
}

type wireMedia struct {
	ID      int64 `json:"id"`
	OwnerID int64 `json:"owner_id"`
}

type wireLink struct {
	URL string `json:"url"`
}

// Group is an upstream community descriptor.
type Group struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ScreenName   string `json:"screen_name"`
	IsClosed     int    `json:"is_closed"`
	Deactivated  string `json:"deactivated"`
	MembersCount int64  `json:"members_count"`
}

// Reachable reports whether the community can still be scanned.
func (g *Group) Reachable() bool {
	return g.Deactivated == "" && g.IsClosed == 0
}

// Account describes the owner of a validated credential.
type Account struct {
	UserID      int64
	Name        string
	Permissions []string
}

type wireUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AsModel maps the wire post onto the canonical record. Fingerprints,
// sentiment and score are filled in later by the scan job; a repost keeps
// the wall owner as ExternalOwnerID and the original author as
// ExternalAuthorID.
func (w *WallPost) AsModel(community *models.Community) models.Post {
	p := models.Post{
		CommunityID:      community.ID,
		RegionID:         community.RegionID,
		ExternalOwnerID:  w.OwnerID,
		ExternalPostID:   w.ID,
		ExternalAuthorID: w.FromID,
		PublishedAt:      time.Unix(w.Date, 0).UTC(),
		Text:             w.Text,
		Views:            w.Views.Count,
		Likes:            w.Likes.Count,
		Reposts:          w.Reposts.Count,
		Comments:         w.Comments.Count,
		Status:           models.PostStatusNew,
		SentimentLabel:   models.SentimentNeutral,
	}
	if len(w.CopyHistory) > 0 {
		p.ExternalAuthorID = w.CopyHistory[0].OwnerID
		if p.Text == "" {
			p.Text = w.CopyHistory[0].Text
		}
	}
	for _, a := range w.Attachments {
		p.Attachments = append(p.Attachments, a.asModel())
	}
	return p
}

func (a *wireAttachment) asModel() models.Attachment {
	switch a.Type {
	case "photo":
		return models.Attachment{Type: models.AttachmentPhoto, RemoteID: remoteID("photo", a.Photo)}
	case "video":
		return models.Attachment{Type: models.AttachmentVideo, RemoteID: remoteID("video", a.Video)}
	case "audio":
		return models.Attachment{Type: models.AttachmentAudio, RemoteID: remoteID("audio", a.Audio)}
	case "doc":
		return models.Attachment{Type: models.AttachmentDoc, RemoteID: remoteID("doc", a.Doc)}
	case "link":
		att := models.Attachment{Type: models.AttachmentLink}
		if a.Link != nil {
			att.URL = a.Link.URL
		}
		return att
	}
	return models.Attachment{Type: models.AttachmentOther}
}

func remoteID(kind string, m *wireMedia) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s%d_%d", kind, m.OwnerID, m.ID)
}
