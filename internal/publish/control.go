package publish

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"job_distributor/internal/channel"
	"job_distributor/internal/model"
)

var actionStatus = map[Action]struct {
	channel  model.CampaignChannelStatus
	campaign model.CampaignStatus
}{
	ActionPause:  {model.ChannelPaused, model.CampaignPaused},
	ActionResume: {model.ChannelActive, model.CampaignActive},
	ActionDelete: {model.ChannelArchived, model.CampaignCompleted},
}

// Control relays an action to every published channel of a campaign and
// updates the stored statuses of the channels that accepted it.
func (o *Orchestrator) Control(ctx context.Context, campaignID int64, action Action) (*Summary, error) {
	target, ok := actionStatus[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}
	rows, err := o.store.ListCampaignChannels(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign channels: %w", err)
	}

	var channels []string
	external := make(map[string]string)
	for _, r := range rows {
		if r.ExternalCampaignID == "" || r.Status == model.ChannelArchived {
			continue
		}
		if _, seen := external[r.ChannelID]; !seen {
			channels = append(channels, r.ChannelID)
		}
		external[r.ChannelID] = r.ExternalCampaignID
	}

	results := make([]ChannelResult, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			results[i] = o.controlOne(ctx, c, ch, external[ch], action, target.channel)
			return nil
		})
	}
	_ = g.Wait()

	s := &Summary{CampaignID: c.ID, TotalChannels: len(channels), Results: results}
	for _, r := range results {
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	if s.Failed == 0 {
		if err := o.store.SetCampaignStatus(ctx, c.ID, target.campaign); err != nil {
			return s, fmt.Errorf("set campaign status: %w", err)
		}
	}
	o.log.Info("campaign control", "campaign_id", c.ID, "action", action, "successful", s.Successful, "failed", s.Failed)
	return s, nil
}

func (o *Orchestrator) controlOne(ctx context.Context, c *model.Campaign, channelID, externalID string, action Action, status model.CampaignChannelStatus) ChannelResult {
	res := ChannelResult{ChannelID: channelID}
	a, err := o.channels.Get(ctx, channelID, c.UserID)
	if err != nil {
		res.Err = err
		return res
	}

	if ctl, ok := a.(channel.Controller); ok {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		switch action {
		case ActionPause:
			err = ctl.Pause(cctx, externalID)
		case ActionResume:
			err = ctl.Resume(cctx, externalID)
		case ActionDelete:
			err = ctl.Delete(cctx, externalID)
		}
		if err != nil {
			res.Err = err
			o.log.Error("channel control failed", "campaign_id", c.ID, "channel", channelID, "action", action, "error", err)
			return res
		}
	}

	if err := o.store.SetCampaignChannelStatus(ctx, c.ID, a.ID(), status); err != nil {
		res.Err = fmt.Errorf("store channel status: %w", err)
		return res
	}
	res.Success = true
	return res
}
