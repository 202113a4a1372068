package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/linode/linodego"
	"golang.org/x/oauth2"
	"k8s.io/klog/v2"
)

const linodeHostPrefix = "linode:"

//go:generate mockgen -source=linode.go -destination=mock/mock_linode.go -package=mock

// LinodeClient is the subset of linodego used to resolve hosts, so it can be mocked out for testing
type LinodeClient interface {
	ListInstances(ctx context.Context, opts *linodego.ListOptions) ([]linodego.Instance, error)
}

// NewLinodeClient returns a linodego client authenticated with token.
func NewLinodeClient(ctx context.Context, token string) *linodego.Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauth2Client := oauth2.NewClient(ctx, tokenSource)

	client := linodego.NewClient(oauth2Client)
	return &client
}

func resolveHosts(ctx context.Context, hosts []string) ([]string, error) {
	needsLinode := false
	for _, h := range hosts {
		if strings.HasPrefix(h, linodeHostPrefix) {
			needsLinode = true
			break
		}
	}
	if !needsLinode {
		return hosts, nil
	}
	token := os.Getenv("LINODE_TOKEN")
	if token == "" {
		return nil, errors.New("LINODE_TOKEN env variable is required to resolve linode: hosts")
	}
	return ResolveHosts(ctx, NewLinodeClient(ctx, token), hosts)
}

// ResolveHosts replaces every "linode:<tag>" entry with the public IPv4 address of each
// Linode instance carrying that tag. Other entries are kept as they are.
func ResolveHosts(ctx context.Context, client LinodeClient, hosts []string) ([]string, error) {
	resolved := make([]string, 0, len(hosts))
	for _, h := range hosts {
		tag, ok := strings.CutPrefix(h, linodeHostPrefix)
		if !ok {
			resolved = append(resolved, h)
			continue
		}
		filter, err := json.Marshal(map[string]string{"tags": tag})
		if err != nil {
			return nil, fmt.Errorf("unable to marshal instance list filter: %s", err)
		}
		instances, err := client.ListInstances(ctx, linodego.NewListOptions(0, string(filter)))
		if err != nil {
			return nil, fmt.Errorf("unable to list instances tagged %s: %s", tag, err)
		}
		for _, instance := range instances {
			addr := publicIPv4(instance)
			if addr == "" {
				klog.Warningf("instance %s has no public IPv4 address, skipping", instance.Label)
				continue
			}
			klog.V(4).Infof("[config] resolved %s to %s (%s)", h, addr, instance.Label)
			resolved = append(resolved, addr)
		}
	}
	return resolved, nil
}

func publicIPv4(instance linodego.Instance) string {
	for _, ip := range instance.IPv4 {
		if ip != nil && !ip.IsPrivate() {
			return ip.String()
		}
	}
	return ""
}
