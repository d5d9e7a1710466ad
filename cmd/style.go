package main

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/network"
)

func settlementBox(s lottery.Settlement) string {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	var players []string
	for _, p := range s.Players {
		name := shortID(p)
		if p == s.Winner {
			name = pterm.LightGreen(name)
		}
		players = append(players, name)
	}
	body := pterm.Sprintfln("%s won %s ether", pterm.LightCyan(string(s.Winner)), s.Amount) +
		pterm.Sprintfln("Players: %s", strings.Join(players, ", ")) +
		pterm.Sprintf("Seed: %x", s.Seed)
	return pbox.WithTitle(pterm.LightYellow("|ROUND " + strconv.FormatUint(s.Round, 10) + "|")).WithTitleTopCenter().Sprint(body)
}

func roundBox(info network.RoundInfo) string {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	body := pterm.Sprintfln("Stake: %s ether (%s)", info.Stake, lottery.FormatWei(info.Stake)) +
		pterm.Sprintfln("Players: %d", info.Players) +
		pterm.Sprintf("Pool: %s", pterm.BgGreen.Sprint(" "+info.Pool.String()+" ether "))
	return pbox.WithTitle(pterm.LightYellow("|ROUND " + strconv.FormatUint(info.Round, 10) + "|")).WithTitleTopCenter().Sprint(body)
}

func playersTable(resp network.PlayersResponse) pterm.TableData {
	data := pterm.TableData{{"#", "Player"}}
	for i, p := range resp.Players {
		data = append(data, []string{strconv.Itoa(i + 1), string(p)})
	}
	return data
}

func winnersTable(winners []lottery.Settlement) pterm.TableData {
	data := pterm.TableData{{"Round", "Winner", "Amount", "Players"}}
	for _, s := range winners {
		data = append(data, []string{
			strconv.FormatUint(s.Round, 10),
			string(s.Winner),
			s.Amount.String(),
			strconv.Itoa(len(s.Players)),
		})
	}
	return data
}

// shortID abbreviates long hex identities for compact listings.
func shortID(id lottery.Identity) string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:6]) + ".." + string(id[len(id)-4:])
}
